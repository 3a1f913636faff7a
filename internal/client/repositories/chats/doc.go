// Package chats provides the client-side persistence layer for chats in
// their storage (encrypted) form.
//
// # Overview
//
// Repository defines CRUD and version-counter operations on
// models.StoredChat. SQLiteRepository persists rows through a dbx.DBTX, so
// the same code runs against *sql.DB or inside a *sql.Tx opened by the
// store.
//
// The repository never sees plaintext: encryption happens in the codec
// before rows reach it.
//
// Typical Usage
//
//	repo := chats.NewSQLiteRepository(tx)
//	_ = repo.Upsert(ctx, stored)
//	one, _ := repo.GetByID(ctx, id)
//	_ = repo.UpdateVersion(ctx, id, models.DraftVersion, 4)
package chats
