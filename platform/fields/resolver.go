// Package fields classifies a form's fields into the structure the rendering
// and submission surfaces consume: panel grouping, cascading select
// dependencies, conditional visibility/enablement, and option filtering.
package fields

import (
	"encoding/json"
	"fmt"
	"forms_platform/platform/schema"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type LinkKind int

const (
	LinkNone LinkKind = iota
	LinkPanelChild
	LinkCascadingChild
)

func (k LinkKind) String() string {
	switch k {
	case LinkPanelChild:
		return "panel"
	case LinkCascadingChild:
		return "cascading"
	default:
		return "none"
	}
}

// ParentLink is the disambiguated parent relation of a field. The stored
// parent_field_id serves two unrelated purposes (panel membership and
// cascading selects); which one applies depends only on the parent's type.
type ParentLink struct {
	Kind     LinkKind
	ParentId uuid.UUID
}

// ResolveParentLink disambiguates a single field's parent against the set of
// fields it belongs with. A parent id that does not resolve within the set
// (e.g. a field from another form) yields LinkNone rather than undefined
// nesting.
func ResolveParentLink(field *schema.FormField, byId map[uuid.UUID]*schema.FormField) ParentLink {
	if field.ParentFieldId == nil {
		return ParentLink{Kind: LinkNone}
	}
	parent, ok := byId[*field.ParentFieldId]
	if !ok {
		return ParentLink{Kind: LinkNone}
	}
	if parent.FieldType == schema.FieldPanel {
		return ParentLink{Kind: LinkPanelChild, ParentId: parent.Id}
	}
	return ParentLink{Kind: LinkCascadingChild, ParentId: parent.Id}
}

// LayoutItem is one root-level entry of a form's render structure: either a
// standalone field (Children nil) or a panel with its nested children.
type LayoutItem struct {
	Field    schema.FormField
	Children []schema.FormField
}

type Layout struct {
	Items []LayoutItem

	// Links holds the resolved parent relation for every field, including
	// panel children.
	Links map[uuid.UUID]ParentLink
}

// Classify builds the render structure in a single pass over the field set.
// Fields must be supplied in their render order; panel children keep that
// order within their panel. A field can appear under at most one panel since
// parent_field_id is single valued.
func Classify(formFields []schema.FormField) Layout {
	byId := make(map[uuid.UUID]*schema.FormField, len(formFields))
	for i := range formFields {
		byId[formFields[i].Id] = &formFields[i]
	}

	links := make(map[uuid.UUID]ParentLink, len(formFields))
	children := make(map[uuid.UUID][]schema.FormField)

	for i := range formFields {
		link := ResolveParentLink(&formFields[i], byId)
		links[formFields[i].Id] = link
		if link.Kind == LinkPanelChild {
			children[link.ParentId] = append(children[link.ParentId], formFields[i])
		}
	}

	items := make([]LayoutItem, 0, len(formFields))
	for _, field := range formFields {
		if links[field.Id].Kind == LinkPanelChild {
			continue
		}
		item := LayoutItem{Field: field}
		if field.FieldType == schema.FieldPanel {
			item.Children = children[field.Id]
			if item.Children == nil {
				item.Children = []schema.FormField{}
			}
		}
		items = append(items, item)
	}

	return Layout{Items: items, Links: links}
}

// Condition is a single field-name to expected-value pair. An empty condition
// is always true. Conditions are evaluated against the in-progress form state
// observed by the consuming surface, not against persisted answers.
type Condition map[string]string

func DecodeCondition(raw datatypes.JSON) (Condition, error) {
	if len(raw) == 0 {
		return Condition{}, nil
	}
	var cond Condition
	if err := json.Unmarshal(raw, &cond); err != nil {
		return nil, fmt.Errorf("error decoding condition: %w", err)
	}
	return cond, nil
}

// Matches reports whether the condition holds for the given state. Values are
// compared by string equality; a missing state entry compares as "".
func (c Condition) Matches(state map[string]string) bool {
	for name, expected := range c {
		if state[name] != expected {
			return false
		}
	}
	return true
}

// Option is one entry of a field's option list. The stored JSON allows two
// shapes: a bare string, or an object {label, value, parentValue}.
type Option struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	ParentValue string `json:"parentValue,omitempty"`
}

func (o *Option) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		o.Label = plain
		o.Value = plain
		o.ParentValue = ""
		return nil
	}

	type option Option
	var obj option
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*o = Option(obj)
	return nil
}

func DecodeOptions(raw datatypes.JSON) ([]Option, error) {
	if len(raw) == 0 {
		return []Option{}, nil
	}
	var options []Option
	if err := json.Unmarshal(raw, &options); err != nil {
		return nil, fmt.Errorf("error decoding options: %w", err)
	}
	return options, nil
}

// FilterOptions returns the options valid under the given parent value, by
// exact string match on each option's parentValue tag. An option without a
// tag decodes to the empty tag, so it matches only the empty parent value and
// never a real selection.
func FilterOptions(options []Option, parentValue string) []Option {
	matched := make([]Option, 0, len(options))
	for _, opt := range options {
		if opt.ParentValue == parentValue {
			matched = append(matched, opt)
		}
	}
	return matched
}

// IsAcademicSelect reports whether the field type sources its options from
// the academic hierarchy rather than the static option list. These are
// filtered by foreign key equality against the hierarchy store, not by
// parentValue string matching.
func IsAcademicSelect(fieldType string) bool {
	switch fieldType {
	case schema.FieldSelectEtablissement, schema.FieldSelectFaculte,
		schema.FieldSelectDomaine, schema.FieldSelectSpecialite:
		return true
	}
	return false
}
