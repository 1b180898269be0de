package types

import (
	"fmt"
	"math"
	"strings"
)

// Color is the severity color attached to a verdict.
type Color string

const (
	ColorGreen Color = "GREEN"
	ColorRed   Color = "RED"
	ColorGrey  Color = "GREY"
	ColorWhite Color = "WHITE"
)

// ColorForCode derives the severity color from a numeric result code: codes
// ending in .0 are nominal, .1 are faults and .2 are inconclusive. Negative
// codes mark a unit that is not running.
func ColorForCode(code float64) Color {
	if code < 0 {
		return ColorWhite
	}
	switch int(math.Round(code*10)) % 10 {
	case 1:
		return ColorRed
	case 2:
		return ColorGrey
	default:
		return ColorGreen
	}
}

// Tier is a sensitivity level. The set is closed so every rule is evaluated
// against a fully populated threshold record.
type Tier int

const (
	TierLow Tier = iota
	TierNormal
	TierHigh
	TierCustom
)

// TierCount is the number of defined tiers.
const TierCount = 4

func (t Tier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierNormal:
		return "normal"
	case TierHigh:
		return "high"
	case TierCustom:
		return "custom"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier maps a tier name onto the enum.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return TierLow, nil
	case "normal":
		return TierNormal, nil
	case "high":
		return TierHigh, nil
	case "custom":
		return TierCustom, nil
	}
	return 0, fmt.Errorf("unknown sensitivity tier %q", s)
}

// MarshalText encodes the tier by name so tier-keyed maps read naturally in
// JSON.
func (t Tier) MarshalText() ([]byte, error) {
	if t < TierLow || t > TierCustom {
		return nil, fmt.Errorf("invalid tier %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name.
func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Verdict is the immutable result of one rule at one tier for one window.
type Verdict struct {
	Rule         string   `json:"rule"`
	Tier         Tier     `json:"tier"`
	Code         float64  `json:"code"`
	Message      string   `json:"message"`
	Color        Color    `json:"color"`
	EnergyImpact *float64 `json:"energy_impact,omitempty"`
}

// NewVerdict builds a verdict whose color follows the code.
func NewVerdict(rule string, tier Tier, code float64, message string) Verdict {
	return Verdict{
		Rule:    rule,
		Tier:    tier,
		Code:    code,
		Message: message,
		Color:   ColorForCode(code),
	}
}

// Command is a setpoint override sent to the controlled equipment.
type Command struct {
	Channel Channel `json:"channel"`
	Value   float64 `json:"value"`
}
