package quest

const (
	flagAttributes     = "attributes"
	flagSkillModifiers = "skill_modifiers"
)

// IsOptionAvailable evaluates an option's gates against instance flags.
//
// An attribute requirement passes when flags.attributes[attr] >= min. An
// attribute that is absent or non-numeric never blocks the option. Every
// condition path must resolve to a value equal to the expected one; a
// missing path fails.
func IsOptionAvailable(opt *Option, flags Object) bool {
	if req := opt.RequiredAttribute; req != nil {
		if v, ok := attributeValue(flags, req.Attribute); ok && v < req.MinValue {
			return false
		}
	}
	for path, expected := range opt.Conditions {
		actual, ok := flags.Lookup(path)
		if !ok || !actual.Equal(expected) {
			return false
		}
	}
	return true
}

func attributeValue(flags Object, name string) (int, bool) {
	return nestedInt(flags, flagAttributes, name)
}

// SkillModifier reads flags.skill_modifiers[skill], defaulting to 0.
func SkillModifier(flags Object, skill string) int {
	v, _ := nestedInt(flags, flagSkillModifiers, skill)
	return v
}

func nestedInt(flags Object, group, key string) (int, bool) {
	g, ok := flags[group]
	if !ok {
		return 0, false
	}
	obj, ok := g.AsObject()
	if !ok {
		return 0, false
	}
	v, ok := obj[key]
	if !ok {
		return 0, false
	}
	return v.AsInt()
}
