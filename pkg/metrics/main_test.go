package metrics

import (
	"os"
	"testing"

	"github.com/inconshreveable/log15"
)

func TestMain(m *testing.M) {
	log15.Root().SetHandler(log15.DiscardHandler())
	os.Exit(m.Run())
}
