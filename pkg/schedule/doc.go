// Package schedule provides the trigger schedules that drive periodic
// scheduler ticks.
//
// This package includes:
//   - Schedule interface
//   - Every() for fixed-interval triggers
//   - Cron() and ParseCron() for cron expressions
//   - Parse() for configuration strings that hold either form
package schedule
