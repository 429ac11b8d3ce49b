// Package models contains GORM persistence models for the billing engine.
// Domain types stay free of ORM tags; each model converts with ToDomain and
// FromDomain, and repositories only ever read and write models.
//
// Timestamps are normalized to UTC before they are written so that range
// comparisons behave the same on postgres and sqlite.
package models
