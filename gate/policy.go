package gate

import (
	"io"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/gexl/gexl"
)

// Policy is a deployment-supplied narrowing of an already-registered
// whitelist. Configuration can only remove capabilities, never add them: a
// name listed here without a registered accessor or invoker stays
// unavailable. A missing or empty list leaves that table untouched.
type Policy struct {
	Objects []string `yaml:"objects"`
	Callees []string `yaml:"callees"`
	Custom  []string `yaml:"custom"`
}

// LoadPolicy reads a YAML policy document.
func LoadPolicy(r io.Reader) (*Policy, error) {
	var p Policy
	if e := yaml.NewDecoder(r).Decode(&p); e != nil {
		if e == io.EOF {
			return &Policy{}, nil
		}
		return nil, gexl.FormatError(BadPolicyError, "bad policy: %s", e.Error())
	}
	return &p, nil
}

// PolicyFromFile reads a YAML policy document from path.
func PolicyFromFile(path string) (*Policy, error) {
	f, e := os.Open(path)
	if e != nil {
		return nil, gexl.FormatError(BadPolicyError, "bad policy: %s", e.Error())
	}
	defer f.Close()

	return LoadPolicy(f)
}

// Restrict drops every registered capability not named by the policy. Meant
// to run during host startup, after registration and before the first
// compile.
func (w *Whitelist) Restrict(p *Policy) {
	if len(p.Objects) > 0 {
		keep := index(p.Objects)
		for name := range w.objects {
			if !keep[name] {
				delete(w.objects, name)
			}
		}
	}
	if len(p.Callees) > 0 {
		keep := index(p.Callees)
		for path := range w.callees {
			if !keep[path] {
				delete(w.callees, path)
			}
		}
	}
	if len(p.Custom) > 0 {
		keep := index(p.Custom)
		for name := range w.custom {
			if !keep[name] {
				delete(w.custom, name)
			}
		}
	}
}

func index(names []string) map[string]bool {
	res := make(map[string]bool, len(names))
	for _, n := range names {
		res[n] = true
	}
	return res
}
