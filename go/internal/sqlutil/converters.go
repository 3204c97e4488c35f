package sqlutil

import (
	"database/sql"
	"time"
)

// Nullable columns are pointers on the models. database/sql binds a nil
// pointer as NULL, so only the scan side and zero-time columns need help.

// Ptr unwraps a scanned nullable column.
func Ptr[T any](n sql.Null[T]) *T {
	if !n.Valid {
		return nil
	}
	v := n.V
	return &v
}

// NullTime binds the zero time as NULL so a COALESCE or column default applies.
func NullTime(t time.Time) sql.Null[time.Time] {
	return sql.Null[time.Time]{V: t, Valid: !t.IsZero()}
}
