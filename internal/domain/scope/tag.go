package scope

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCustomTag is returned when a Custom tag is built without a name.
var ErrInvalidCustomTag = errors.New("custom scope tag requires a non-empty name")

// Category classifies a scope
type Category int

const (
	CategoryRoot Category = iota
	CategoryWindow
	CategoryDatabase
	CategoryWorkflow
	CategoryRequest
	CategoryCustom
)

// String returns the lowercase category name
func (c Category) String() string {
	switch c {
	case CategoryRoot:
		return "root"
	case CategoryWindow:
		return "window"
	case CategoryDatabase:
		return "database"
	case CategoryWorkflow:
		return "workflow"
	case CategoryRequest:
		return "request"
	case CategoryCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// ParseCategory is the inverse of Category.String (case-insensitive)
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "root":
		return CategoryRoot, nil
	case "window":
		return CategoryWindow, nil
	case "database":
		return CategoryDatabase, nil
	case "workflow":
		return CategoryWorkflow, nil
	case "request":
		return CategoryRequest, nil
	case "custom":
		return CategoryCustom, nil
	default:
		return 0, fmt.Errorf("unknown scope category %q", s)
	}
}

// Tag is an immutable scope label. Tags are comparable with ==.
type Tag struct {
	category Category
	name     string
}

// NewTag builds a tag, rejecting a Custom tag with an empty name.
func NewTag(category Category, name string) (Tag, error) {
	if category < CategoryRoot || category > CategoryCustom {
		return Tag{}, fmt.Errorf("unknown scope category %d", int(category))
	}
	if category == CategoryCustom && name == "" {
		return Tag{}, ErrInvalidCustomTag
	}
	return Tag{category: category, name: name}, nil
}

// Root returns the application root tag
func Root() Tag { return Tag{category: CategoryRoot} }

// Window returns a window tag with an optional name
func Window(name string) Tag { return Tag{category: CategoryWindow, name: name} }

// Database returns a database (unit of work) tag
func Database(name string) Tag { return Tag{category: CategoryDatabase, name: name} }

// Workflow returns a workflow tag
func Workflow(name string) Tag { return Tag{category: CategoryWorkflow, name: name} }

// Request returns a request tag
func Request(name string) Tag { return Tag{category: CategoryRequest, name: name} }

// Custom returns a custom tag; name must be non-empty.
func Custom(name string) (Tag, error) { return NewTag(CategoryCustom, name) }

// Category returns the tag category
func (t Tag) Category() Category { return t.category }

// Name returns the optional tag name
func (t Tag) Name() string { return t.name }

// MatchingKey selects which scope a shared service pins to. Database, Workflow
// and Custom tags pin by category and name; Window and Request pin by category
// only, so every concrete window or request scope gets its own instance.
func (t Tag) MatchingKey() string {
	switch t.category {
	case CategoryDatabase, CategoryWorkflow, CategoryCustom:
		return t.category.String() + ":" + t.name
	default:
		return t.category.String()
	}
}

// String renders category[:name]
func (t Tag) String() string {
	if t.name == "" {
		return t.category.String()
	}
	return t.category.String() + ":" + t.name
}

// ParseTag parses the String form, category[:name].
func ParseTag(s string) (Tag, error) {
	category, name, _ := strings.Cut(strings.TrimSpace(s), ":")
	c, err := ParseCategory(category)
	if err != nil {
		return Tag{}, err
	}
	return NewTag(c, name)
}
