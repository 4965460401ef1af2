package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/benforcapita/play-app-sub000/model"
)

// sectionCodec binds one section of the vocabulary to its response key, its
// JSON Schema and its strict decoder. The registry is iterated uniformly so
// one section's failure never touches another's attempt.
type sectionCodec struct {
	name   string
	key    string
	schema *jsonschema.Schema
	decode func(raw json.RawMessage, sheet *model.CharacterSheet) error
}

const sectionMissingMessage = "Section not found in response"

var sectionCodecs = []sectionCodec{
	{
		name:   "CharacterInfo",
		key:    "characterInfo",
		schema: mustSchema("characterInfo", `{"type":"object","properties":{"name":{"type":"string"},"class":{"type":"string"},"species":{"type":"string"},"level":{"type":"integer"},"background":{"type":"string"},"alignment":{"type":"string"},"experiencePoints":{"type":"integer"}}}`),
		decode: func(raw json.RawMessage, sheet *model.CharacterSheet) error {
			var v model.CharacterInfo
			if err := strictDecode(raw, &v); err != nil {
				return err
			}
			sheet.CharacterInfo = &v
			return nil
		},
	},
	{
		name:   "Appearance",
		key:    "appearance",
		schema: mustSchema("appearance", `{"type":"object","properties":{"age":{"type":"string"},"height":{"type":"string"},"weight":{"type":"string"},"eyes":{"type":"string"},"skin":{"type":"string"},"hair":{"type":"string"}}}`),
		decode: func(raw json.RawMessage, sheet *model.CharacterSheet) error {
			var v model.Appearance
			if err := strictDecode(raw, &v); err != nil {
				return err
			}
			sheet.Appearance = &v
			return nil
		},
	},
	{
		name:   "AbilityScores",
		key:    "abilityScores",
		schema: mustSchema("abilityScores", `{"type":"object","properties":{"strength":{"type":"integer"},"dexterity":{"type":"integer"},"constitution":{"type":"integer"},"intelligence":{"type":"integer"},"wisdom":{"type":"integer"},"charisma":{"type":"integer"}}}`),
		decode: func(raw json.RawMessage, sheet *model.CharacterSheet) error {
			var v model.AbilityScores
			if err := strictDecode(raw, &v); err != nil {
				return err
			}
			sheet.AbilityScores = &v
			return nil
		},
	},
	{
		name:   "SavingThrows",
		key:    "savingThrows",
		schema: mustSchema("savingThrows", `{"type":"object","additionalProperties":{"type":"object","properties":{"proficient":{"type":"boolean"},"bonus":{"type":"integer"}}}}`),
		decode: func(raw json.RawMessage, sheet *model.CharacterSheet) error {
			var v model.SavingThrows
			if err := strictDecode(raw, &v); err != nil {
				return err
			}
			sheet.SavingThrows = &v
			return nil
		},
	},
	{
		name:   "Skills",
		key:    "skills",
		schema: mustSchema("skills", `{"type":"array","items":{"type":"object","properties":{"name":{"type":"string"},"ability":{"type":"string"},"proficient":{"type":"boolean"},"bonus":{"type":"integer"}}}}`),
		decode: func(raw json.RawMessage, sheet *model.CharacterSheet) error {
			var v []model.Skill
			if err := strictDecode(raw, &v); err != nil {
				return err
			}
			sheet.Skills = v
			return nil
		},
	},
	{
		name:   "Combat",
		key:    "combat",
		schema: mustSchema("combat", `{"type":"object","properties":{"armorClass":{"type":"integer"},"initiative":{"type":"integer"},"speed":{"type":"integer"},"hitPointMaximum":{"type":"integer"},"currentHitPoints":{"type":"integer"},"temporaryHitPoints":{"type":"integer"},"hitDice":{"type":"string"},"deathSaves":{"type":"object"}}}`),
		decode: func(raw json.RawMessage, sheet *model.CharacterSheet) error {
			var v model.Combat
			if err := strictDecode(raw, &v); err != nil {
				return err
			}
			sheet.Combat = &v
			return nil
		},
	},
	{
		name:   "Proficiencies",
		key:    "proficiencies",
		schema: mustSchema("proficiencies", `{"type":"object","properties":{"armor":{"type":"array","items":{"type":"string"}},"weapons":{"type":"array","items":{"type":"string"}},"tools":{"type":"array","items":{"type":"string"}},"languages":{"type":"array","items":{"type":"string"}}}}`),
		decode: func(raw json.RawMessage, sheet *model.CharacterSheet) error {
			var v model.Proficiencies
			if err := strictDecode(raw, &v); err != nil {
				return err
			}
			sheet.Proficiencies = &v
			return nil
		},
	},
	{
		name:   "FeaturesAndTraits",
		key:    "featuresAndTraits",
		schema: mustSchema("featuresAndTraits", `{"type":"array","items":{"type":"object","properties":{"name":{"type":"string"},"source":{"type":"string"},"description":{"type":"string"}}}}`),
		decode: func(raw json.RawMessage, sheet *model.CharacterSheet) error {
			var v []model.Feature
			if err := strictDecode(raw, &v); err != nil {
				return err
			}
			sheet.FeaturesAndTraits = v
			return nil
		},
	},
	{
		name:   "Equipment",
		key:    "equipment",
		schema: mustSchema("equipment", `{"type":"object","properties":{"items":{"type":"array","items":{"type":"object","properties":{"name":{"type":"string"},"quantity":{"type":"integer"}}}},"currency":{"type":"object","properties":{"cp":{"type":"integer"},"sp":{"type":"integer"},"ep":{"type":"integer"},"gp":{"type":"integer"},"pp":{"type":"integer"}}}}}`),
		decode: func(raw json.RawMessage, sheet *model.CharacterSheet) error {
			var v model.Equipment
			if err := strictDecode(raw, &v); err != nil {
				return err
			}
			sheet.Equipment = &v
			return nil
		},
	},
	{
		name:   "Spellcasting",
		key:    "spellcasting",
		schema: mustSchema("spellcasting", `{"type":"object","properties":{"ability":{"type":"string"},"saveDC":{"type":"integer"},"attackBonus":{"type":"integer"},"slots":{"type":"array","items":{"type":"object"}},"spells":{"type":"array","items":{"type":"object"}}}}`),
		decode: func(raw json.RawMessage, sheet *model.CharacterSheet) error {
			var v model.Spellcasting
			if err := strictDecode(raw, &v); err != nil {
				return err
			}
			sheet.Spellcasting = &v
			return nil
		},
	},
	{
		name:   "Persona",
		key:    "persona",
		schema: mustSchema("persona", `{"type":"object","properties":{"personalityTraits":{"type":"string"},"ideals":{"type":"string"},"bonds":{"type":"string"},"flaws":{"type":"string"}}}`),
		decode: func(raw json.RawMessage, sheet *model.CharacterSheet) error {
			var v model.Persona
			if err := strictDecode(raw, &v); err != nil {
				return err
			}
			sheet.Persona = &v
			return nil
		},
	},
	{
		name:   "Backstory",
		key:    "backstory",
		schema: mustSchema("backstory", `{"type":"object","properties":{"backstory":{"type":"string"},"alliesAndOrganizations":{"type":"string"},"treasure":{"type":"string"}}}`),
		decode: func(raw json.RawMessage, sheet *model.CharacterSheet) error {
			var v model.Backstory
			if err := strictDecode(raw, &v); err != nil {
				return err
			}
			sheet.Backstory = &v
			return nil
		},
	},
}

func mustSchema(name, schema string) *jsonschema.Schema {
	return jsonschema.MustCompileString("sections/"+name+".json", schema)
}

// strictDecode unmarshals raw rejecting unknown fields, so a response shape
// drifting from the sheet model surfaces as a section failure.
func strictDecode(raw json.RawMessage, target any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

// ParseResponseObject parses the assistant's text content as a JSON object
// keyed by section names. A malformed or non-object payload fails the whole
// attempt; there is nothing per-section to salvage.
func ParseResponseObject(content string) (map[string]json.RawMessage, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &root); err != nil {
		return nil, fmt.Errorf("failed to parse extraction response: %w", err)
	}
	return root, nil
}

// RunSections attempts every section of the vocabulary independently against
// the parsed response and returns the assembled sheet plus one result per
// section, in registry order.
func RunSections(root map[string]json.RawMessage) (*model.CharacterSheet, []model.SectionResult) {
	sheet := &model.CharacterSheet{}
	results := make([]model.SectionResult, 0, len(sectionCodecs))

	for _, codec := range sectionCodecs {
		result := model.SectionResult{
			SectionName: codec.name,
			ProcessedAt: time.Now().UTC(),
		}

		raw, ok := root[codec.key]
		if !ok {
			msg := sectionMissingMessage
			result.ErrorMessage = &msg
			results = append(results, result)
			continue
		}

		if err := validateSection(codec.schema, raw); err != nil {
			msg := err.Error()
			result.ErrorMessage = &msg
			results = append(results, result)
			continue
		}

		if err := codec.decode(raw, sheet); err != nil {
			msg := err.Error()
			result.ErrorMessage = &msg
			results = append(results, result)
			continue
		}

		result.IsSuccessful = true
		results = append(results, result)
	}

	return sheet, results
}

func validateSection(schema *jsonschema.Schema, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return schema.Validate(v)
}
