package logging

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// WatermillAdapter はwatermillのログをzerologに流す。
type WatermillAdapter struct {
	logger zerolog.Logger
	fields watermill.LogFields
}

// NewWatermillAdapter はcomponentフィールドを付けたwatermill用ロガーを返す。
func NewWatermillAdapter(component string) *WatermillAdapter {
	return &WatermillAdapter{logger: With("component", component)}
}

// Error はerrorレベルで出力する。
func (a *WatermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.logger.Error().Err(err).Fields(map[string]any(a.fields.Add(fields))).Msg(msg)
}

// Info はinfoレベルで出力する。
func (a *WatermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.logger.Info().Fields(map[string]any(a.fields.Add(fields))).Msg(msg)
}

// Debug はdebugレベルで出力する。
func (a *WatermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.logger.Debug().Fields(map[string]any(a.fields.Add(fields))).Msg(msg)
}

// Trace はtraceレベルで出力する。
func (a *WatermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.logger.Trace().Fields(map[string]any(a.fields.Add(fields))).Msg(msg)
}

// With はフィールドを追加したロガーを返す。
func (a *WatermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillAdapter{logger: a.logger, fields: a.fields.Add(fields)}
}
