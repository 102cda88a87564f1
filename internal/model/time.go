package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// LocalTime is a custom time type to format time as "YYYY-MM-DD HH:MM:SS".
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	formatted := fmt.Sprintf("\"%s\"", time.Time(t).Format(timeFormat))
	return []byte(formatted), nil
}

// String 返回日志行中使用的格式。
func (t LocalTime) String() string {
	return time.Time(t).Format(timeFormat)
}

// Value 让 gorm 以 DATETIME 存储。
func (t LocalTime) Value() (driver.Value, error) {
	return time.Time(t), nil
}

// Scan 从数据库读取 DATETIME。
func (t *LocalTime) Scan(v interface{}) error {
	switch val := v.(type) {
	case time.Time:
		*t = LocalTime(val)
		return nil
	case nil:
		*t = LocalTime(time.Time{})
		return nil
	default:
		return fmt.Errorf("cannot scan %T into LocalTime", v)
	}
}
