// Package models contains the GORM models of the persistence layer. They are
// kept apart from the domain types; ToDomain and FromDomain map between them.
package models
