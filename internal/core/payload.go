package core

import "fmt"

// String returns the string stored under key.
func (c Command) String(key string) (string, error) {
	v, ok := c.Payload[key]
	if !ok {
		return "", fmt.Errorf("%s: missing '%s'", c.Type, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: '%s' must be a string, got %T", c.Type, key, v)
	}
	return s, nil
}

// OptionalString returns "" when key is absent.
func (c Command) OptionalString(key string) (string, error) {
	if _, ok := c.Payload[key]; !ok {
		return "", nil
	}
	return c.String(key)
}

// Int returns the number stored under key. JSON numbers arrive as float64,
// Go callers may pass any integer type.
func (c Command) Int(key string) (int, error) {
	v, ok := c.Payload[key]
	if !ok {
		return 0, fmt.Errorf("%s: missing '%s'", c.Type, key)
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint8:
		return int(n), nil
	}
	return 0, fmt.Errorf("%s: '%s' must be a number, got %T", c.Type, key, v)
}

// Byte returns the number under key, checked to fit 0-255.
func (c Command) Byte(key string) (uint8, error) {
	n, err := c.Int(key)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 255 {
		return 0, fmt.Errorf("%s: '%s' out of range: %d", c.Type, key, n)
	}
	return uint8(n), nil
}

// OptionalByte returns def when key is absent.
func (c Command) OptionalByte(key string, def uint8) (uint8, error) {
	if _, ok := c.Payload[key]; !ok {
		return def, nil
	}
	return c.Byte(key)
}
