package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/safing/itemstore/store"
)

// Where returns a condition on the value at the given gjson path of the
// entity's persistent data, which must be JSON. Entities without JSON data
// or without a value at the path do not match. Invalid parameters are
// reported by Check and by every call to Matches.
func Where(key string, operator uint8, value interface{}) Condition {
	c := &whereCond{key: key, operator: operator, value: value}

	var err error
	switch operator {
	case Equals, GreaterThan, GreaterThanOrEqual, LessThan, LessThanOrEqual:
		c.intValue, err = toInt64(value)
	case FloatEquals, FloatGreaterThan, FloatGreaterThanOrEqual, FloatLessThan, FloatLessThanOrEqual:
		c.floatValue, err = toFloat64(value)
	case SameAs, Contains, StartsWith, EndsWith:
		c.stringValue, err = toString(value)
	case In:
		switch v := value.(type) {
		case []string:
			c.stringSlice = v
		case string:
			c.stringSlice = strings.Split(v, ",")
		default:
			err = fmt.Errorf("incompatible value %v for []string", value)
		}
	case Matches:
		var s string
		s, err = toString(value)
		if err == nil {
			c.regex, err = regexp.Compile(s)
		}
	case Is:
		switch v := value.(type) {
		case bool:
			c.boolValue = v
		case string:
			c.boolValue, err = strconv.ParseBool(v)
		default:
			err = fmt.Errorf("incompatible value %v for bool", value)
		}
	case Exists:
	default:
		err = fmt.Errorf("unknown operator %d", operator)
	}
	if err != nil {
		c.err = fmt.Errorf("where %s %s: %w", key, getOpName(operator), err)
		c.operator = errorPresent
	}
	return c
}

// Has matches entities that have a value at the given path.
func Has(key string) Condition {
	return Where(key, Exists, nil)
}

type whereCond struct {
	key      string
	operator uint8
	value    interface{}
	err      error

	intValue    int64
	floatValue  float64
	stringValue string
	stringSlice []string
	boolValue   bool
	regex       *regexp.Regexp
}

func (c *whereCond) Matches(e store.Entity) (bool, error) {
	if c.err != nil {
		return false, c.err
	}

	data, err := e.PersistentData()
	if err != nil {
		return false, err
	}
	if !gjson.ValidBytes(data) {
		return false, nil
	}
	result := gjson.GetBytes(data, c.key)
	if !result.Exists() {
		return false, nil
	}

	switch c.operator {
	case Exists:
		return true, nil
	case Equals, GreaterThan, GreaterThanOrEqual, LessThan, LessThanOrEqual:
		if result.Type != gjson.Number {
			return false, nil
		}
		return compareInt(c.operator, result.Int(), c.intValue), nil
	case FloatEquals, FloatGreaterThan, FloatGreaterThanOrEqual, FloatLessThan, FloatLessThanOrEqual:
		if result.Type != gjson.Number {
			return false, nil
		}
		return compareFloat(c.operator, result.Float(), c.floatValue), nil
	case SameAs, Contains, StartsWith, EndsWith, In, Matches:
		if result.Type != gjson.String {
			return false, nil
		}
		return c.compareString(result.Str), nil
	case Is:
		if !result.IsBool() {
			return false, nil
		}
		return result.Bool() == c.boolValue, nil
	}
	return false, nil
}

func compareInt(operator uint8, have, want int64) bool {
	switch operator {
	case Equals:
		return have == want
	case GreaterThan:
		return have > want
	case GreaterThanOrEqual:
		return have >= want
	case LessThan:
		return have < want
	case LessThanOrEqual:
		return have <= want
	}
	return false
}

func compareFloat(operator uint8, have, want float64) bool {
	switch operator {
	case FloatEquals:
		return have == want
	case FloatGreaterThan:
		return have > want
	case FloatGreaterThanOrEqual:
		return have >= want
	case FloatLessThan:
		return have < want
	case FloatLessThanOrEqual:
		return have <= want
	}
	return false
}

func (c *whereCond) compareString(have string) bool {
	switch c.operator {
	case SameAs:
		return have == c.stringValue
	case Contains:
		return strings.Contains(have, c.stringValue)
	case StartsWith:
		return strings.HasPrefix(have, c.stringValue)
	case EndsWith:
		return strings.HasSuffix(have, c.stringValue)
	case In:
		for _, s := range c.stringSlice {
			if s == have {
				return true
			}
		}
		return false
	case Matches:
		return c.regex.MatchString(have)
	}
	return false
}

func (c *whereCond) check() error {
	return c.err
}

func (c *whereCond) String() string {
	if c.err != nil {
		return fmt.Sprintf("[error: %s]", c.err)
	}
	if c.operator == Exists {
		return fmt.Sprintf("%s exists", c.key)
	}
	return fmt.Sprintf("%s %s %v", c.key, getOpName(c.operator), c.value)
}

func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("incompatible value %v for int64", value)
	}
}

func toFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		i, err := toInt64(value)
		if err != nil {
			return 0, fmt.Errorf("incompatible value %v for float64", value)
		}
		return float64(i), nil
	}
}

func toString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("incompatible value %v for string", value)
	}
}
