package session

// Op names a single-field edit.
type Op int

const (
	// SetField stores a plain text value.
	SetField Op = iota
	// SetRichText stores an HTML fragment from the rich text editor.
	SetRichText
	// SetImage points an image slot at a hosted URL (upload, drop, paste
	// and set-URL all end here).
	SetImage
	// RemoveImage empties an image slot.
	RemoveImage
	// SetCreativeDirection stores the free-form creative direction note.
	SetCreativeDirection
	// SetProjectName renames the design.
	SetProjectName
)

func (o Op) String() string {
	switch o {
	case SetField:
		return "field"
	case SetRichText:
		return "rich_text"
	case SetImage:
		return "image"
	case RemoveImage:
		return "remove_image"
	case SetCreativeDirection:
		return "creative_direction"
	case SetProjectName:
		return "project_name"
	default:
		return "unknown"
	}
}

// Mutation is one user edit.
type Mutation struct {
	Op    Op
	Key   string
	Value string
}

// Outcome tells the caller what happened to a mutation.
type Outcome int

const (
	Applied Outcome = iota
	// DiscardedLoading means the load guard was raised.
	DiscardedLoading
	// DiscardedNoTemplate means no template is selected yet.
	DiscardedNoTemplate
	// DiscardedInvalid means the mutation had no key where one is required.
	DiscardedInvalid
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case DiscardedLoading:
		return "discarded_loading"
	case DiscardedNoTemplate:
		return "discarded_no_template"
	default:
		return "discarded_invalid"
	}
}

// Mutate is the single entry point for user edits. Every kind of edit is
// checked against the load guard here; a discarded edit changes nothing.
func (s *State) Mutate(m Mutation) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loadInFlight {
		return DiscardedLoading
	}
	if s.templateKey == "" {
		return DiscardedNoTemplate
	}

	switch m.Op {
	case SetField, SetRichText:
		if m.Key == "" {
			return DiscardedInvalid
		}
		s.fields[m.Key] = m.Value
	case SetImage:
		if m.Key == "" {
			return DiscardedInvalid
		}
		s.images[m.Key] = m.Value
	case RemoveImage:
		if m.Key == "" {
			return DiscardedInvalid
		}
		delete(s.images, m.Key)
	case SetCreativeDirection:
		s.creativeDirection = m.Value
	case SetProjectName:
		s.projectName = m.Value
	default:
		return DiscardedInvalid
	}

	s.dirty = true
	s.editSeq++
	s.revision++
	return Applied
}
