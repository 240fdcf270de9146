package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

type ChallengeType string

const (
	ChallengeSetup ChallengeType = "setup"
	ChallengeLogin ChallengeType = "login"
	// ChallengeRecovery is reserved. Nothing creates it and verifying one
	// always fails.
	ChallengeRecovery ChallengeType = "recovery"
)

func (t ChallengeType) Valid() bool {
	switch t {
	case ChallengeSetup, ChallengeLogin, ChallengeRecovery:
		return true
	}
	return false
}

var ErrChallengeContext = errors.New("domain: challenge context does not match challenge type")

// ChallengeContext is the per-type payload of a challenge. The set of
// implementations is closed: SetupContext, LoginContext, RecoveryContext.
type ChallengeContext interface {
	ChallengeType() ChallengeType
	challengeContext()
}

type SetupContext struct{}

type LoginContext struct {
	// RememberMe asks for the long refresh token lifetime once the
	// challenge is passed.
	RememberMe bool `json:"remember_me"`
}

type RecoveryContext struct{}

func (SetupContext) ChallengeType() ChallengeType    { return ChallengeSetup }
func (LoginContext) ChallengeType() ChallengeType    { return ChallengeLogin }
func (RecoveryContext) ChallengeType() ChallengeType { return ChallengeRecovery }

func (SetupContext) challengeContext()    {}
func (LoginContext) challengeContext()    {}
func (RecoveryContext) challengeContext() {}

type contextEnvelope struct {
	Type ChallengeType   `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EncodeChallengeContext serialises c with a "type" discriminator.
func EncodeChallengeContext(c ChallengeContext) (string, error) {
	if c == nil {
		return "", ErrChallengeContext
	}
	env := contextEnvelope{Type: c.ChallengeType()}
	if lc, ok := c.(LoginContext); ok {
		data, err := json.Marshal(lc)
		if err != nil {
			return "", err
		}
		env.Data = data
	}
	out, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DecodeChallengeContext parses raw and checks its discriminator against the
// type of the challenge row it was stored on.
func DecodeChallengeContext(typ ChallengeType, raw string) (ChallengeContext, error) {
	var env contextEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChallengeContext, err)
	}
	if env.Type != typ {
		return nil, fmt.Errorf("%w: stored %q on a %q challenge", ErrChallengeContext, env.Type, typ)
	}

	switch typ {
	case ChallengeSetup:
		return SetupContext{}, nil
	case ChallengeRecovery:
		return RecoveryContext{}, nil
	case ChallengeLogin:
		var lc LoginContext
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &lc); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrChallengeContext, err)
			}
		}
		return lc, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrChallengeContext, typ)
}
