package quest

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// EffectsDocument is the authoring shape of an option's effects:
//
//	effects:
//	  progress:
//	    find_courier: 1
//	    report_back: {set_current: 0, set_target: 2}
//	  flags:
//	    met_courier: true
type EffectsDocument struct {
	Progress map[string]ProgressInstruction `json:"progress,omitempty" yaml:"progress"`
	Flags    Object                         `json:"flags,omitempty" yaml:"flags"`
}

// IsEmpty reports whether the document declares nothing.
func (d EffectsDocument) IsEmpty() bool {
	return len(d.Progress) == 0 && len(d.Flags) == 0
}

// ProgressInstruction is either a bare number (a delta) or an object of
// set_current / set_target / set_completed overrides.
type ProgressInstruction struct {
	Delta        *int
	SetCurrent   *int
	SetTarget    *int
	SetCompleted *bool
}

type progressOverrides struct {
	SetCurrent   *int  `json:"set_current,omitempty" yaml:"set_current"`
	SetTarget    *int  `json:"set_target,omitempty" yaml:"set_target"`
	SetCompleted *bool `json:"set_completed,omitempty" yaml:"set_completed"`
}

func (p ProgressInstruction) MarshalJSON() ([]byte, error) {
	if p.Delta != nil {
		return strconv.AppendInt(nil, int64(*p.Delta), 10), nil
	}
	return json.Marshal(progressOverrides{
		SetCurrent:   p.SetCurrent,
		SetTarget:    p.SetTarget,
		SetCompleted: p.SetCompleted,
	})
}

func (p *ProgressInstruction) UnmarshalJSON(data []byte) error {
	var v Value
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return p.fromValue(v)
}

func (p *ProgressInstruction) UnmarshalYAML(node *yaml.Node) error {
	var v Value
	if err := v.UnmarshalYAML(node); err != nil {
		return err
	}
	if err := p.fromValue(v); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

func (p *ProgressInstruction) fromValue(v Value) error {
	*p = ProgressInstruction{}
	if v.Kind() == KindNumber {
		d, _ := v.AsInt()
		p.Delta = &d
		return nil
	}
	obj, ok := v.AsObject()
	if !ok {
		return fmt.Errorf("progress instruction must be a number or an object, got %s", v.Kind())
	}
	for key, field := range obj {
		switch key {
		case "set_current", "set_target":
			n, ok := field.AsInt()
			if !ok {
				return fmt.Errorf("%s must be a number", key)
			}
			if key == "set_current" {
				p.SetCurrent = &n
			} else {
				p.SetTarget = &n
			}
		case "set_completed":
			b, ok := field.AsBool()
			if !ok {
				return fmt.Errorf("set_completed must be a boolean")
			}
			p.SetCompleted = &b
		default:
			return fmt.Errorf("unknown progress instruction %q", key)
		}
	}
	return nil
}
