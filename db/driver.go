package db

import (
	"database/sql"
	"regexp"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// DriverName is the sqlite3 driver with the artificer SQL functions registered
const DriverName = "sqlite3_artificer"

var patterns sync.Map // pattern -> *regexp.Regexp

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("regexp", sqlRegexp, true)
		},
	})
}

// sqlRegexp backs "value REGEXP pattern"; SQLite passes the pattern first.
// NULL values never match. The driver hands NULL to an interface{} argument
// as a nil []byte.
func sqlRegexp(pattern string, value interface{}) (bool, error) {
	var s string
	switch v := value.(type) {
	case nil:
		return false, nil
	case string:
		s = v
	case []byte:
		if v == nil {
			return false, nil
		}
		s = string(v)
	default:
		return false, nil
	}
	re, err := compilePattern(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(s), nil
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patterns.Store(pattern, re)
	return re, nil
}
