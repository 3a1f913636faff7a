// Package store is the local chat store. It keeps chats, messages and the
// offline change queue in a single SQLite database.
//
// Chats go in through the codec and come out decrypted: callers of AddChat,
// GetChat and GetAllChats only ever see plaintext entities while the database
// only ever holds ciphertext. Message persistence is lower level: SaveMessage
// and GetMessagesForChat work on the storage form, AddMessage and
// GetDecryptedMessages run the codec for the caller.
//
// Every multi-row write runs in one transaction. A failed transaction leaves
// no partial state and is reported as common.ErrTransactionFailure, which the
// caller may retry.
package store
