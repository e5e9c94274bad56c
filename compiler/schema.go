package compiler

import "regexp"

// TypeTag is a compile-time-only label on a binding or expression result,
// used to check attribute access. It has no runtime representation
// (spec.md GLOSSARY: "Type tag").
type TypeTag string

const (
	TypeAny    TypeTag = "any"
	TypeNumber TypeTag = "number"
	TypeList   TypeTag = "List"
	TypeBot    TypeTag = "Bot"
	TypeGundam TypeTag = "Gundam"
	TypePlayer TypeTag = "Player"
	TypeEnemy  TypeTag = "Enemy"
	TypeCore   TypeTag = "Core"

	// TypeEnemyList is the result tag of attributes like Bot.scan() - a
	// List known (best-effort) to hold Enemy elements, so indexing it
	// still lets attribute checks see through to Enemy (spec.md §4.3
	// rule 3: "enemies[i] inside a for-loop -> Enemy").
	TypeEnemyList TypeTag = "List[Enemy]"
)

// Attribute describes one attribute of a TypeTag: whether it is callable,
// and the TypeTag of the value it yields (TypeAny when unknown - spec.md
// §4.3 rule 3, "best effort" type propagation).
type Attribute struct {
	Name     string
	Result   TypeTag
	Callable bool
}

// TypeDescriptor lists every attribute legally accessible on a TypeTag.
type TypeDescriptor struct {
	Tag        TypeTag
	Attributes map[string]Attribute
}

func (d *TypeDescriptor) names() []string {
	names := make([]string, 0, len(d.Attributes))
	for n := range d.Attributes {
		names = append(names, n)
	}
	return names
}

// patternBinding pattern-matches a binding name to a TypeTag without an
// explicit Schema entry (spec.md §3: `^B[1-4]$` -> Bot, `^G([1-9]|[12]\d|30)$` -> Gundam).
type patternBinding struct {
	pattern *regexp.Regexp
	tag     TypeTag
}

var patternBindings = []patternBinding{
	{regexp.MustCompile(`^B[1-4]$`), TypeBot},
	{regexp.MustCompile(`^G([1-9]|[12]\d|30)$`), TypeGundam},
}

// Schema is the compile-time environment: a mapping from binding name to
// TypeTag, plus the attribute descriptors each TypeTag carries.
type Schema struct {
	Bindings     map[string]TypeTag
	Descriptors  map[TypeTag]*TypeDescriptor
	elementTypes map[TypeTag]TypeTag
}

// NewSchema builds an empty Schema pre-populated with the reference host
// bindings' type descriptors (Bot, Gundam, Player, Enemy, Core) so callers
// only need to add their own env_types bindings. List and number carry no
// descriptor, so attribute access on them is not checked.
func NewSchema() *Schema {
	s := &Schema{
		Bindings:    map[string]TypeTag{},
		Descriptors: map[TypeTag]*TypeDescriptor{},
		elementTypes: map[TypeTag]TypeTag{
			TypeEnemyList: TypeEnemy,
		},
	}
	for _, d := range defaultDescriptors() {
		s.Descriptors[d.Tag] = d
	}
	return s
}

// ElementType reports the TypeTag yielded by GET_INDEX on a container of
// containerTag, when known (e.g. TypeEnemyList -> TypeEnemy).
func (s *Schema) ElementType(containerTag TypeTag) (TypeTag, bool) {
	tag, ok := s.elementTypes[containerTag]
	return tag, ok
}

// Bind records a binding name -> TypeTag pair (an env_types entry, or
// `self`).
func (s *Schema) Bind(name string, tag TypeTag) {
	s.Bindings[name] = tag
}

// Lookup resolves a binding name to its TypeTag, falling back to the
// regex pattern bindings (B1-4, G1-30), then TypeAny.
func (s *Schema) Lookup(name string) (TypeTag, bool) {
	if tag, ok := s.Bindings[name]; ok {
		return tag, true
	}
	for _, pb := range patternBindings {
		if pb.pattern.MatchString(name) {
			return pb.tag, true
		}
	}
	return TypeAny, false
}

// Attribute looks up name on tag's descriptor. ok is false when tag has no
// descriptor (treated as TypeAny: no check performed) or the attribute is
// unknown.
func (s *Schema) Attribute(tag TypeTag, name string) (Attribute, bool) {
	desc, ok := s.Descriptors[tag]
	if !ok {
		return Attribute{}, false
	}
	attr, ok := desc.Attributes[name]
	return attr, ok
}

// AttributeNames lists the known attribute names of tag, for "did you
// mean?" suggestion ranking. Returns nil when tag has no descriptor.
func (s *Schema) AttributeNames(tag TypeTag) []string {
	desc, ok := s.Descriptors[tag]
	if !ok {
		return nil
	}
	return desc.names()
}

// defaultDescriptors describes the reference host's unit-control surface
// (spec.md §6 reserved names; concrete attribute sets are a SPEC_FULL.md
// addition since spec.md leaves the exact per-type attribute list to the
// host - see host/unit.go and host/environment.go for the runtime
// counterparts).
func defaultDescriptors() []*TypeDescriptor {
	return []*TypeDescriptor{
		{
			Tag: TypeBot,
			Attributes: map[string]Attribute{
				"forward":  {Name: "forward", Result: TypeAny, Callable: true},
				"turn":     {Name: "turn", Result: TypeAny, Callable: true},
				"fire":     {Name: "fire", Result: TypeAny, Callable: true},
				"scan":     {Name: "scan", Result: TypeEnemyList, Callable: true},
				"hp":       {Name: "hp", Result: TypeNumber, Callable: false},
				"ammo":     {Name: "ammo", Result: TypeNumber, Callable: false},
				"position": {Name: "position", Result: TypeList, Callable: false},
			},
		},
		{
			Tag: TypeGundam,
			Attributes: map[string]Attribute{
				"forward":  {Name: "forward", Result: TypeAny, Callable: true},
				"turn":     {Name: "turn", Result: TypeAny, Callable: true},
				"fire":     {Name: "fire", Result: TypeAny, Callable: true},
				"boost":    {Name: "boost", Result: TypeAny, Callable: true},
				"scan":     {Name: "scan", Result: TypeEnemyList, Callable: true},
				"hp":       {Name: "hp", Result: TypeNumber, Callable: false},
				"ammo":     {Name: "ammo", Result: TypeNumber, Callable: false},
				"position": {Name: "position", Result: TypeList, Callable: false},
			},
		},
		{
			Tag: TypePlayer,
			Attributes: map[string]Attribute{
				"hacker": {Name: "hacker", Result: TypePlayer, Callable: false},
				"scrap":  {Name: "scrap", Result: TypeNumber, Callable: false},
			},
		},
		{
			Tag: TypeEnemy,
			Attributes: map[string]Attribute{
				"hp":       {Name: "hp", Result: TypeNumber, Callable: false},
				"position": {Name: "position", Result: TypeList, Callable: false},
				"distance": {Name: "distance", Result: TypeNumber, Callable: false},
			},
		},
		{
			Tag: TypeCore,
			Attributes: map[string]Attribute{
				"hp":       {Name: "hp", Result: TypeNumber, Callable: false},
				"position": {Name: "position", Result: TypeList, Callable: false},
			},
		},
	}
}
