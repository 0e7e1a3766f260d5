package sexpr

import "strconv"

// OptionalString implements the Maybe<string> deserialization rule: an
// empty wire value is Some(""), never None. Call sites that need to detect
// "field absent entirely" should check the second bool from Get/Path
// instead.
func OptionalString(t Tree) string {
	if t.Kind != KindValue {
		return ""
	}
	return t.Value
}

// OptionalInt implements the Maybe<int> deserialization rule: an empty
// wire value deserializes to absent (ok=false), diverging from
// OptionalString's treatment of "" as a present empty value. This
// asymmetry is deliberate — see the design notes on Maybe<T>.
func OptionalInt(t Tree) (value int, ok bool) {
	if t.Kind != KindValue || t.Value == "" {
		return 0, false
	}
	n, err := strconv.Atoi(t.Value)
	if err != nil {
		return 0, false
	}
	return n, true
}

// OptionalBool parses a boolean wire value ("true"/"false"/"1"/"0"),
// treating an empty or missing value as absent.
func OptionalBool(t Tree) (value bool, ok bool) {
	if t.Kind != KindValue || t.Value == "" {
		return false, false
	}
	switch t.Value {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	default:
		return false, false
	}
}

// GetString looks up a field on an Object node and reads it as a Maybe<string>.
func GetString(t Tree, key string) string {
	v, ok := t.Get(key)
	if !ok {
		return ""
	}
	return OptionalString(v)
}

// GetInt looks up a field on an Object node and reads it as a Maybe<int>.
func GetInt(t Tree, key string) (int, bool) {
	v, ok := t.Get(key)
	if !ok {
		return 0, false
	}
	return OptionalInt(v)
}

// GetBool looks up a field on an Object node and reads it as a Maybe<bool>.
func GetBool(t Tree, key string) (bool, bool) {
	v, ok := t.Get(key)
	if !ok {
		return false, false
	}
	return OptionalBool(v)
}
