// Package logger is a standardized event logging framework for the shell.
//
// Every entry is a protobuf Struct written as a single line of JSON:
//
//	{"timestamp_micros":1650000000000000, "session_id":"123",
//	 "event_type":"run_command", "event":{...}}
package logger
