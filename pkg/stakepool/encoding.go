package stakepool

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/fortiblox/x1-stakepool/internal/types"
)

// LayoutVersion is the serialized pool layout version. It prefixes every
// serialized pool.
const LayoutVersion uint8 = 1

// Maximum registry size accepted when decoding.
const maxEncodedValidators = 1 << 16

var (
	// ErrInvalidData is returned when serialized pool data is malformed.
	ErrInvalidData = errors.New("invalid pool data")

	// ErrUnsupportedLayout is returned for an unknown layout version.
	ErrUnsupportedLayout = errors.New("unsupported pool layout version")
)

type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) u32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *encoder) u64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *encoder) pubkey(k types.Pubkey) {
	e.buf = append(e.buf, k[:]...)
}

func (e *encoder) optPubkey(k *types.Pubkey) {
	if k == nil {
		e.u8(0)
		return
	}
	e.u8(1)
	e.pubkey(*k)
}

func (e *encoder) fee(f Fee) {
	e.u64(f.Numerator)
	e.u64(f.Denominator)
}

func (e *encoder) scheduled(s ScheduledFee) {
	e.fee(s.Current)
	if s.Pending == nil {
		e.u8(0)
		return
	}
	e.u8(1)
	e.fee(*s.Pending)
	e.u64(s.EffectiveEpoch)
}

// decoder reads little-endian fields and latches the first error.
type decoder struct {
	data []byte
	off  int
	err  error
}

func (d *decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if len(d.data)-d.off < n {
		d.err = errors.Wrapf(ErrInvalidData, "truncated at offset %d", d.off)
		return false
	}
	return true
}

func (d *decoder) u8() uint8 {
	if !d.need(1) {
		return 0
	}
	v := d.data[d.off]
	d.off++
	return v
}

func (d *decoder) u32() uint32 {
	if !d.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(d.data[d.off:])
	d.off += 4
	return v
}

func (d *decoder) u64() uint64 {
	if !d.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(d.data[d.off:])
	d.off += 8
	return v
}

func (d *decoder) pubkey() types.Pubkey {
	var k types.Pubkey
	if !d.need(types.PubkeySize) {
		return k
	}
	copy(k[:], d.data[d.off:])
	d.off += types.PubkeySize
	return k
}

func (d *decoder) flag() bool {
	switch d.u8() {
	case 0:
		return false
	case 1:
		return true
	default:
		if d.err == nil {
			d.err = errors.Wrapf(ErrInvalidData, "bad option tag at offset %d", d.off-1)
		}
		return false
	}
}

func (d *decoder) optPubkey() *types.Pubkey {
	if !d.flag() {
		return nil
	}
	k := d.pubkey()
	return &k
}

func (d *decoder) fee() Fee {
	return Fee{Numerator: d.u64(), Denominator: d.u64()}
}

func (d *decoder) scheduled() ScheduledFee {
	s := ScheduledFee{Current: d.fee()}
	if d.flag() {
		f := d.fee()
		s.Pending = &f
		s.EffectiveEpoch = d.u64()
	}
	return s
}

// Serialize encodes the pool into its binary layout.
func (p *Pool) Serialize() []byte {
	e := &encoder{buf: make([]byte, 0, 512+len(p.Validators)*80)}
	e.u8(LayoutVersion)
	e.pubkey(p.Address)
	e.pubkey(p.Manager)
	e.pubkey(p.Staker)
	e.pubkey(p.ManagerFeeAccount)
	e.u64(p.TotalPoolTokens)
	e.u64(p.TotalStakeLamports)
	e.u64(p.LastUpdateEpoch)
	e.u64(p.LastEpochPoolTokenSupply)
	e.u64(p.LastEpochTotalLamports)
	for kind := FeeEpoch; kind <= FeeSolReferral; kind++ {
		e.scheduled(*p.Fees.Entry(kind))
	}
	e.optPubkey(p.Funding.SolDeposit)
	e.optPubkey(p.Funding.StakeDeposit)
	e.optPubkey(p.Funding.SolWithdraw)
	e.optPubkey(p.PreferredDepositValidator)
	e.optPubkey(p.PreferredWithdrawValidator)
	e.u64(p.Limits.MinimumFloor)
	e.u32(p.Limits.MaxValidators)
	e.u64(p.Limits.MinimumTransient)
	e.u64(p.Reserve.Lamports)
	e.u64(p.Version)
	e.u32(uint32(len(p.Validators)))
	for i := range p.Validators {
		v := &p.Validators[i]
		e.pubkey(v.VoteAccount)
		e.u64(v.ActiveStakeLamports)
		e.u64(v.TransientStakeLamports)
		e.u8(uint8(v.TransientDirection))
		e.u64(v.TransientSeed)
		e.u64(v.TransientEpoch)
		e.u64(v.LastUpdateEpoch)
	}
	return e.buf
}

// DeserializePool decodes a pool produced by Serialize.
func DeserializePool(data []byte) (*Pool, error) {
	d := &decoder{data: data}
	if v := d.u8(); d.err == nil && v != LayoutVersion {
		return nil, errors.Wrapf(ErrUnsupportedLayout, "version %d", v)
	}
	p := &Pool{}
	p.Address = d.pubkey()
	p.Manager = d.pubkey()
	p.Staker = d.pubkey()
	p.ManagerFeeAccount = d.pubkey()
	p.TotalPoolTokens = d.u64()
	p.TotalStakeLamports = d.u64()
	p.LastUpdateEpoch = d.u64()
	p.LastEpochPoolTokenSupply = d.u64()
	p.LastEpochTotalLamports = d.u64()
	for kind := FeeEpoch; kind <= FeeSolReferral; kind++ {
		*p.Fees.Entry(kind) = d.scheduled()
	}
	p.Funding.SolDeposit = d.optPubkey()
	p.Funding.StakeDeposit = d.optPubkey()
	p.Funding.SolWithdraw = d.optPubkey()
	p.PreferredDepositValidator = d.optPubkey()
	p.PreferredWithdrawValidator = d.optPubkey()
	p.Limits.MinimumFloor = d.u64()
	p.Limits.MaxValidators = d.u32()
	p.Limits.MinimumTransient = d.u64()
	p.Reserve.Lamports = d.u64()
	p.Version = d.u64()
	n := d.u32()
	if d.err != nil {
		return nil, d.err
	}
	if n > maxEncodedValidators {
		return nil, errors.Wrapf(ErrInvalidData, "validator count %d", n)
	}
	p.Validators = make([]ValidatorRecord, 0, n)
	for i := uint32(0); i < n; i++ {
		v := ValidatorRecord{VoteAccount: d.pubkey()}
		v.ActiveStakeLamports = d.u64()
		v.TransientStakeLamports = d.u64()
		v.TransientDirection = TransientDirection(d.u8())
		v.TransientSeed = d.u64()
		v.TransientEpoch = d.u64()
		v.LastUpdateEpoch = d.u64()
		if v.TransientDirection > TransientDeactivating && d.err == nil {
			d.err = errors.Wrapf(ErrInvalidData, "validator %d: bad transient direction", i)
		}
		p.Validators = append(p.Validators, v)
	}
	if d.err != nil {
		return nil, d.err
	}
	if d.off != len(data) {
		return nil, errors.Wrapf(ErrInvalidData, "%d trailing bytes", len(data)-d.off)
	}
	return p, nil
}
