package strategy

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"ballast/internal/ensemble"
	"ballast/internal/types"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// definitionsSchema constrains the shape of a strategy definitions document
// before the tree invariants are checked. Compiled once at package init.
const definitionsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["strategies"],
  "additionalProperties": false,
  "properties": {
    "strategies": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "object",
        "required": ["tree"],
        "additionalProperties": false,
        "properties": {
          "description": {"type": "string"},
          "tree": {"$ref": "#/$defs/node"}
        }
      }
    },
    "ensembles": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["members"],
        "additionalProperties": false,
        "properties": {
          "members": {
            "type": "object",
            "minProperties": 1,
            "additionalProperties": {
              "type": "object",
              "required": ["weight"],
              "additionalProperties": false,
              "properties": {
                "weight": {"type": "number", "minimum": 0},
                "optional": {"type": "boolean"}
              }
            }
          }
        }
      }
    }
  },
  "$defs": {
    "node": {
      "type": "object",
      "additionalProperties": false,
      "oneOf": [
        {"required": ["condition"]},
        {"required": ["leaf"]}
      ],
      "properties": {
        "condition": {
          "type": "object",
          "required": ["indicator", "op", "threshold", "if_true", "if_false"],
          "additionalProperties": false,
          "properties": {
            "indicator": {
              "type": "object",
              "required": ["symbol", "kind"],
              "additionalProperties": false,
              "properties": {
                "symbol": {"type": "string", "minLength": 1},
                "kind": {"enum": ["rsi", "sma", "volatility", "price"]},
                "period": {"type": "integer", "minimum": 0}
              }
            },
            "op": {"enum": [">", "<", ">=", "<="]},
            "threshold": {"type": "number"},
            "if_true": {"$ref": "#/$defs/node"},
            "if_false": {"$ref": "#/$defs/node"}
          }
        },
        "leaf": {
          "type": "object",
          "required": ["allocation"],
          "additionalProperties": false,
          "properties": {
            "allocation": {
              "type": "object",
              "minProperties": 1,
              "additionalProperties": {"type": "number", "minimum": 0}
            }
          }
        }
      }
    }
  }
}`

var compiledDefinitionsSchema = mustCompileSchema(definitionsSchema)

func mustCompileSchema(raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("definitions.json", strings.NewReader(raw)); err != nil {
		panic(fmt.Sprintf("add definitions schema: %v", err))
	}
	schema, err := compiler.Compile("definitions.json")
	if err != nil {
		panic(fmt.Sprintf("compile definitions schema: %v", err))
	}
	return schema
}

type defFile struct {
	Strategies map[string]defStrategy `yaml:"strategies"`
	Ensembles  map[string]defEnsemble `yaml:"ensembles"`
}

type defStrategy struct {
	Description string   `yaml:"description"`
	Tree        *defNode `yaml:"tree"`
}

type defNode struct {
	Condition *defCondition `yaml:"condition"`
	Leaf      *defLeaf      `yaml:"leaf"`
}

type defCondition struct {
	Indicator defIndicator `yaml:"indicator"`
	Op        string       `yaml:"op"`
	Threshold float64      `yaml:"threshold"`
	IfTrue    *defNode     `yaml:"if_true"`
	IfFalse   *defNode     `yaml:"if_false"`
}

type defIndicator struct {
	Symbol string `yaml:"symbol"`
	Kind   string `yaml:"kind"`
	Period int    `yaml:"period"`
}

type defLeaf struct {
	Allocation map[string]float64 `yaml:"allocation"`
}

type defEnsemble struct {
	Members map[string]defMember `yaml:"members"`
}

type defMember struct {
	Weight   float64 `yaml:"weight"`
	Optional bool    `yaml:"optional"`
}

// LoadDefinitions reads a declarative strategy/ensemble document. The raw
// document is validated against the JSON Schema first, then decoded strictly
// and checked against the tree and weight invariants, so a bad file is
// rejected before anything reaches the registry.
func LoadDefinitions(path string) ([]*Strategy, []EnsembleDef, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read strategy definitions failed: %w", err)
	}
	return ParseDefinitions(raw)
}

// ParseDefinitions parses and validates one definitions document.
func ParseDefinitions(raw []byte) ([]*Strategy, []EnsembleDef, error) {
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, nil, fmt.Errorf("parse strategy definitions failed: %w", err)
	}
	if err := compiledDefinitionsSchema.Validate(generic); err != nil {
		return nil, nil, fmt.Errorf("strategy definitions schema violation: %w", err)
	}
	var doc defFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("decode strategy definitions failed: %w", err)
	}

	names := make([]string, 0, len(doc.Strategies))
	for name := range doc.Strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	strategies := make([]*Strategy, 0, len(names))
	for _, name := range names {
		root, err := buildNode(doc.Strategies[name].Tree)
		if err != nil {
			return nil, nil, fmt.Errorf("strategy %s: %w", name, err)
		}
		s, err := NewStrategy(name, root)
		if err != nil {
			return nil, nil, err
		}
		strategies = append(strategies, s)
	}

	ensNames := make([]string, 0, len(doc.Ensembles))
	for name := range doc.Ensembles {
		ensNames = append(ensNames, name)
	}
	sort.Strings(ensNames)
	ensembles := make([]EnsembleDef, 0, len(ensNames))
	for _, name := range ensNames {
		def := doc.Ensembles[name]
		memberNames := make([]string, 0, len(def.Members))
		for member := range def.Members {
			memberNames = append(memberNames, member)
		}
		sort.Strings(memberNames)
		members := make([]ensemble.Member, 0, len(memberNames))
		for _, member := range memberNames {
			m := def.Members[member]
			members = append(members, ensemble.Member{
				Strategy: member,
				Weight:   m.Weight,
				Required: !m.Optional,
			})
		}
		ensembles = append(ensembles, EnsembleDef{Name: name, Members: members})
	}
	return strategies, ensembles, nil
}

func buildNode(def *defNode) (RuleNode, error) {
	if def == nil {
		return nil, fmt.Errorf("node is empty")
	}
	switch {
	case def.Condition != nil && def.Leaf != nil:
		return nil, fmt.Errorf("node has both condition and leaf")
	case def.Condition != nil:
		cond := def.Condition
		ifTrue, err := buildNode(cond.IfTrue)
		if err != nil {
			return nil, err
		}
		ifFalse, err := buildNode(cond.IfFalse)
		if err != nil {
			return nil, err
		}
		return &Condition{
			Ref: types.IndicatorRef{
				Symbol: cond.Indicator.Symbol,
				Kind:   types.IndicatorKind(cond.Indicator.Kind),
				Period: cond.Indicator.Period,
			}.Canonical(),
			Op:        Operator(cond.Op),
			Threshold: cond.Threshold,
			IfTrue:    ifTrue,
			IfFalse:   ifFalse,
		}, nil
	case def.Leaf != nil:
		alloc := make(types.AllocationVector, len(def.Leaf.Allocation))
		for sym, w := range def.Leaf.Allocation {
			alloc[strings.ToUpper(strings.TrimSpace(sym))] = w
		}
		return &Leaf{Allocation: alloc}, nil
	default:
		return nil, fmt.Errorf("node has neither condition nor leaf")
	}
}
