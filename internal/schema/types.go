package schema

import (
	"regexp"
	"strconv"
	"strings"
)

// SemanticType is the driver-independent type of a column.
type SemanticType string

const (
	TypeInteger     SemanticType = "integer"
	TypeText        SemanticType = "text"
	TypeDecimal     SemanticType = "decimal"
	TypeBoolean     SemanticType = "boolean"
	TypeDatetime    SemanticType = "datetime"
	TypeEnumeration SemanticType = "enumeration"
)

// TypeInfo is the result of normalizing a driver type name.
type TypeInfo struct {
	Type       SemanticType
	MaxLength  int
	Precision  int
	Scale      int
	EnumValues []string
	// DateOnly is set for DATE columns so values render without a time part.
	DateOnly bool
}

var (
	typeModifierPattern = regexp.MustCompile(`^([a-z0-9_ ]+?)\s*\(([^)]*)\)(.*)$`)
	enumLabelPattern    = regexp.MustCompile(`'((?:[^']|'')*)'`)
)

// NormalizeType maps a driver type name such as "VARCHAR(40)", "numeric(10,2)",
// "timestamp with time zone" or "enum('a','b')" to a semantic type.
// Unknown types fall back to text.
func NormalizeType(raw string) TypeInfo {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.TrimSuffix(name, "[]")
	name = strings.TrimSpace(strings.TrimSuffix(name, " unsigned"))

	var args []string
	if m := typeModifierPattern.FindStringSubmatch(name); m != nil {
		base := strings.TrimSpace(m[1])
		if base == "enum" || base == "set" {
			return TypeInfo{Type: TypeEnumeration, EnumValues: parseEnumLabels(m[2])}
		}
		for _, a := range strings.Split(m[2], ",") {
			args = append(args, strings.TrimSpace(a))
		}
		name = strings.TrimSpace(base + m[3])
	}

	intArg := func(i int) int {
		if i >= len(args) {
			return 0
		}
		n, err := strconv.Atoi(args[i])
		if err != nil {
			return 0
		}
		return n
	}

	switch name {
	case "tinyint":
		if intArg(0) == 1 {
			return TypeInfo{Type: TypeBoolean}
		}
		return TypeInfo{Type: TypeInteger}
	case "bool", "boolean", "bit":
		if name == "bit" && intArg(0) > 1 {
			return TypeInfo{Type: TypeText, MaxLength: intArg(0)}
		}
		return TypeInfo{Type: TypeBoolean}
	case "int", "integer", "int2", "int4", "int8", "smallint", "mediumint", "bigint",
		"serial", "smallserial", "bigserial", "serial4", "serial8", "year":
		return TypeInfo{Type: TypeInteger}
	case "numeric", "decimal", "dec", "number", "money", "smallmoney":
		return TypeInfo{Type: TypeDecimal, Precision: intArg(0), Scale: intArg(1)}
	case "real", "float", "float4", "float8", "double", "double precision":
		return TypeInfo{Type: TypeDecimal}
	case "date":
		return TypeInfo{Type: TypeDatetime, DateOnly: true}
	case "time", "time with time zone", "time without time zone", "timetz",
		"timestamp", "timestamptz", "timestamp with time zone", "timestamp without time zone",
		"datetime", "datetime2", "smalldatetime", "datetimeoffset":
		return TypeInfo{Type: TypeDatetime}
	case "uuid", "uniqueidentifier":
		return TypeInfo{Type: TypeText, MaxLength: 36}
	case "char", "character", "nchar", "varchar", "nvarchar", "character varying",
		"varchar2", "nvarchar2", "bpchar":
		n := intArg(0)
		if len(args) > 0 && args[0] == "max" {
			n = 0
		}
		return TypeInfo{Type: TypeText, MaxLength: n}
	}

	switch {
	case strings.Contains(name, "int"):
		return TypeInfo{Type: TypeInteger}
	case strings.Contains(name, "char"), strings.Contains(name, "text"), strings.Contains(name, "clob"):
		return TypeInfo{Type: TypeText, MaxLength: intArg(0)}
	case strings.Contains(name, "timestamp"), strings.Contains(name, "datetime"):
		return TypeInfo{Type: TypeDatetime}
	case strings.Contains(name, "float"), strings.Contains(name, "double"):
		return TypeInfo{Type: TypeDecimal}
	}
	return TypeInfo{Type: TypeText}
}

func parseEnumLabels(s string) []string {
	matches := enumLabelPattern.FindAllStringSubmatch(s, -1)
	labels := make([]string, 0, len(matches))
	for _, m := range matches {
		labels = append(labels, strings.ReplaceAll(m[1], "''", "'"))
	}
	return labels
}
