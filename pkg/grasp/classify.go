package grasp

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/graspcap/pkg/gesture"
)

// ColliderKind tags a collider by the role it plays in grasping.
type ColliderKind int

const (
	KindNone ColliderKind = iota
	LeftHandPrimary
	LeftHandSecondary
	RightHandPrimary
	RightHandSecondary
	Sphere
)

var kindNames = map[ColliderKind]string{
	KindNone:           "none",
	LeftHandPrimary:    "left_primary",
	LeftHandSecondary:  "left_secondary",
	RightHandPrimary:   "right_primary",
	RightHandSecondary: "right_secondary",
	Sphere:             "sphere",
}

func (k ColliderKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText encodes the kind by name for config files.
func (k ColliderKind) MarshalText() ([]byte, error) {
	s, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown collider kind %d", int(k))
	}
	return []byte(s), nil
}

// UnmarshalText decodes a kind name.
func (k *ColliderKind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown collider kind %q", string(b))
}

// IsHand reports whether the kind belongs to either hand.
func (k ColliderKind) IsHand() bool {
	switch k {
	case LeftHandPrimary, LeftHandSecondary, RightHandPrimary, RightHandSecondary:
		return true
	}
	return false
}

// Hand returns the hand a hand kind belongs to.
func (k ColliderKind) Hand() gesture.Hand {
	if k == RightHandPrimary || k == RightHandSecondary {
		return gesture.Right
	}
	return gesture.Left
}

// Slot returns the grasp slot contacts with this kind compete for.
func (k ColliderKind) Slot() (Slot, bool) {
	switch {
	case k == Sphere:
		return SlotSphere, true
	case k.IsHand():
		return handSlot(k.Hand()), true
	}
	return 0, false
}

// ColliderInfo is the static scene metadata of a collider.
type ColliderInfo struct {
	Layer    int
	Name     string
	Position r3.Vec
}

// AnyLayer matches colliders on every layer.
const AnyLayer = -1

// Rule maps colliders on Layer whose name contains NameContains to Kind.
type Rule struct {
	Layer        int          `json:"layer"`
	NameContains string       `json:"name_contains"`
	Kind         ColliderKind `json:"kind"`
}

func (r Rule) matches(info ColliderInfo) bool {
	if r.Layer != AnyLayer && r.Layer != info.Layer {
		return false
	}
	return strings.Contains(info.Name, r.NameContains)
}

// HandLayer is the scene layer hand colliders live on.
const HandLayer = 17

// DefaultRules classifies the glove rig: index fingertips are primary,
// other fingertips secondary, anything named Sphere is the grasp sphere.
func DefaultRules() []Rule {
	return []Rule{
		{Layer: HandLayer, NameContains: "index_l_end", Kind: LeftHandPrimary},
		{Layer: HandLayer, NameContains: "index_r_end", Kind: RightHandPrimary},
		{Layer: HandLayer, NameContains: "l_end", Kind: LeftHandSecondary},
		{Layer: HandLayer, NameContains: "r_end", Kind: RightHandSecondary},
		{Layer: AnyLayer, NameContains: "Sphere", Kind: Sphere},
	}
}

// Classifier maps collider metadata to a kind using an ordered rule table.
// The first matching rule wins.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier. An empty table uses DefaultRules.
func NewClassifier(rules []Rule) (*Classifier, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	for i, r := range rules {
		if r.NameContains == "" {
			return nil, fmt.Errorf("rule %d: empty name pattern", i)
		}
		if _, ok := kindNames[r.Kind]; !ok {
			return nil, fmt.Errorf("rule %d: unknown kind %d", i, int(r.Kind))
		}
	}
	return &Classifier{rules: append([]Rule(nil), rules...)}, nil
}

// Classify returns the kind of the first matching rule, or KindNone.
func (c *Classifier) Classify(info ColliderInfo) ColliderKind {
	for _, r := range c.rules {
		if r.matches(info) {
			return r.Kind
		}
	}
	return KindNone
}
