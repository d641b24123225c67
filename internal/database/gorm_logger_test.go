package database

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func stmt(sql string) func() (string, int64) {
	return func() (string, int64) { return sql, 1 }
}

func TestGormLoggerLevels(t *testing.T) {
	tests := []struct {
		name  string
		level zerolog.Level
		begin time.Duration
		err   error
		want  string
	}{
		{"failure is reported", zerolog.InfoLevel, 0, errors.New("disk full"), `"message":"query failed"`},
		{"missing row is not an error", zerolog.InfoLevel, 0, gorm.ErrRecordNotFound, ""},
		{"slow query warns", zerolog.InfoLevel, time.Second, nil, `"message":"slow query"`},
		{"fast query hidden at info", zerolog.InfoLevel, 0, nil, ""},
		{"fast query traced at debug", zerolog.DebugLevel, 0, nil, `"message":"query"`},
		{"disabled logger stays silent", zerolog.Disabled, time.Second, errors.New("disk full"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := newGormLogger(zerolog.New(&buf).Level(tt.level))
			l.Trace(context.Background(), time.Now().Add(-tt.begin), stmt("SELECT 1"), tt.err)
			if tt.want == "" {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), tt.want)
			assert.Contains(t, buf.String(), `"sql":"SELECT 1"`)
		})
	}
}

func TestGormLoggerLogMode(t *testing.T) {
	var buf bytes.Buffer
	l := newGormLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)).LogMode(gormlogger.Silent)
	l.Error(context.Background(), "boom %d", 1)
	l.Trace(context.Background(), time.Now(), stmt("SELECT 1"), errors.New("x"))
	assert.Empty(t, buf.String())
}
