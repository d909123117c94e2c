package stakepool

import (
	"github.com/pkg/errors"

	"github.com/fortiblox/x1-stakepool/internal/types"
)

// findValidator returns the index of the record for vote, or -1.
func (p *Pool) findValidator(vote types.Pubkey) int {
	for i := range p.Validators {
		if p.Validators[i].VoteAccount == vote {
			return i
		}
	}
	return -1
}

// validator returns a pointer into the registry, or ErrValidatorNotFound.
func (p *Pool) validator(vote types.Pubkey) (*ValidatorRecord, error) {
	i := p.findValidator(vote)
	if i < 0 {
		return nil, errors.Wrapf(ErrValidatorNotFound, "%s", vote)
	}
	return &p.Validators[i], nil
}

// Validator returns a copy of the record for vote.
func (p *Pool) Validator(vote types.Pubkey) (ValidatorRecord, bool) {
	i := p.findValidator(vote)
	if i < 0 {
		return ValidatorRecord{}, false
	}
	return p.Validators[i], true
}

func (p *Pool) removeValidator(vote types.Pubkey) {
	i := p.findValidator(vote)
	if i < 0 {
		return
	}
	p.Validators = append(p.Validators[:i], p.Validators[i+1:]...)
}

// availableStake is active stake above the minimum floor.
func (p *Pool) availableStake(v *ValidatorRecord) uint64 {
	if v.ActiveStakeLamports <= p.Limits.MinimumFloor {
		return 0
	}
	return v.ActiveStakeLamports - p.Limits.MinimumFloor
}

// allAtFloor reports whether no validator holds stake above the floor.
func (p *Pool) allAtFloor() bool {
	for i := range p.Validators {
		if p.Validators[i].StakeLamports() > p.Limits.MinimumFloor {
			return false
		}
	}
	return true
}

// ValidatorStakeLamports sums active and transient stake over the registry.
func (p *Pool) ValidatorStakeLamports() uint64 {
	var sum uint64
	for i := range p.Validators {
		sum += p.Validators[i].StakeLamports()
	}
	return sum
}
