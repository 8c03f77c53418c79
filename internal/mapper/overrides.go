package mapper

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Overrides adjusts name-based pairing. All names are as they appear on the
// side named by the field.
//
//	tables:
//	  - local: customers
//	    remote: clients
//	    columns:
//	      name: full_name
//	    exclude: [password_hash]
//	exclude: [audit_log]
type Overrides struct {
	Tables  []TableOverride `yaml:"tables"`
	Exclude []string        `yaml:"exclude"`
}

// TableOverride renames a table and adjusts its columns.
type TableOverride struct {
	Local   string            `yaml:"local"`
	Remote  string            `yaml:"remote"`
	Columns map[string]string `yaml:"columns"`
	Exclude []string          `yaml:"exclude"`
}

// LoadOverrides reads an overrides file. An empty path yields no overrides.
func LoadOverrides(path string) (*Overrides, error) {
	if path == "" {
		return &Overrides{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping overrides: %w", err)
	}
	return ParseOverrides(data)
}

// ParseOverrides decodes overrides YAML. Unknown keys are rejected.
func ParseOverrides(data []byte) (*Overrides, error) {
	ov := &Overrides{}
	if len(bytes.TrimSpace(data)) == 0 {
		return ov, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(ov); err != nil {
		return nil, invalidOverride("parse mapping overrides: %v", err)
	}
	for i := range ov.Tables {
		if ov.Tables[i].Local == "" {
			return nil, invalidOverride("tables[%d]: local is required", i)
		}
		if ov.Tables[i].Remote == "" {
			ov.Tables[i].Remote = ov.Tables[i].Local
		}
	}
	return ov, nil
}

func (o *Overrides) forTable(local string) *TableOverride {
	for i := range o.Tables {
		if o.Tables[i].Local == local {
			return &o.Tables[i]
		}
	}
	return nil
}

func (o *Overrides) excludesTable(local string) bool {
	for _, t := range o.Exclude {
		if t == local {
			return true
		}
	}
	return false
}

func (o *Overrides) remoteTable(local string) (string, bool) {
	if t := o.forTable(local); t != nil {
		return t.Remote, true
	}
	return "", false
}

// renamesTo reports whether some other local table is renamed onto remote.
func (o *Overrides) renamesTo(remote string) bool {
	for _, t := range o.Tables {
		if t.Remote == remote && t.Local != remote {
			return true
		}
	}
	return false
}

func (o *Overrides) check(localTables, remoteTables []string) error {
	local := toSet(localTables)
	remote := toSet(remoteTables)
	targets := make(map[string]string)
	for _, t := range o.Tables {
		if !local[t.Local] {
			return invalidOverride("override names unknown local table %q", t.Local)
		}
		if !remote[t.Remote] {
			return invalidOverride("override maps %q to unknown remote table %q", t.Local, t.Remote)
		}
		if prev, dup := targets[t.Remote]; dup {
			return invalidOverride("remote table %q is mapped from both %q and %q", t.Remote, prev, t.Local)
		}
		targets[t.Remote] = t.Local
	}
	for _, t := range o.Exclude {
		if !local[t] {
			return invalidOverride("exclude names unknown local table %q", t)
		}
	}
	return nil
}

func (t *TableOverride) excludesColumn(local string) bool {
	for _, c := range t.Exclude {
		if c == local {
			return true
		}
	}
	return false
}

func (t *TableOverride) checkColumns(localCols, remoteCols []string) error {
	local := toSet(localCols)
	remote := toSet(remoteCols)
	targets := make(map[string]string)
	for lc, rc := range t.Columns {
		if !local[lc] {
			return invalidOverride("table %q: unknown local column %q", t.Local, lc)
		}
		if !remote[rc] {
			return invalidOverride("table %q: unknown remote column %q", t.Remote, rc)
		}
		if prev, dup := targets[rc]; dup {
			return invalidOverride("table %q: remote column %q is mapped from both %q and %q", t.Remote, rc, prev, lc)
		}
		targets[rc] = lc
	}
	for _, c := range t.Exclude {
		if !local[c] {
			return invalidOverride("table %q: exclude names unknown local column %q", t.Local, c)
		}
	}
	return nil
}
