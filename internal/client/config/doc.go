// Package config loads runtime configuration for the chatkeeper CLI.
//
// Sources, later ones winning:
//
//  1. Defaults from env-default struct tags.
//  2. An optional config file given with -c or -config. JSON and YAML are
//     chosen by extension.
//  3. Environment variables with the CHATKEEPER_ prefix.
//  4. Command-line flags:
//
//	-d string   path to the local database file
//	-l string   log level (debug, info, warn, error)
//
// Example YAML file:
//
//	database_path: /home/me/.chatkeeper/chats.db
//	log_level: debug
//	kdf:
//	  time: 2
//	  memory_kib: 131072
//	  threads: 4
package config
