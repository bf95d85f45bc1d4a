package state

const MaxReferralCodeLen = 20

// UserProfile tracks one participant: their referral code and the one-time
// invitor binding. Created on first use, never destroyed.
type UserProfile struct {
	Owner        string
	Invitor      string // empty until bound; immutable once set
	ReferralCode string
}

func (p *UserProfile) HasInvitor() bool {
	return p.Invitor != ""
}

func (p *UserProfile) Clone() *UserProfile {
	c := *p
	return &c
}
