// Package routes keeps the live route table and certificate store in sync
// with the route definitions on disk.
//
// Each route is one JSON document named "{id}.json" in the routes directory:
//
//	{
//	  "id": "shop",
//	  "name": "Shop frontend",
//	  "dnsUrl": "shop.example.com",
//	  "localUrl": "http://127.0.0.1:3000",
//	  "certificatesDirectory": "/etc/gatehouse/certs/shop",
//	  "certificatePassword": "",
//	  "enabled": true
//	}
//
// Field names are matched case-insensitively. A Manager loads every file at
// Start, then watches the routes directory and each referenced certificate
// directory with fsnotify. Changes settle through a per-path Debouncer
// before the affected file or certificate is re-read.
//
// Save and Delete are the operations used by the admin API. Save writes
// atomically and records a hash of what it wrote so the watcher skips the
// manager's own writes instead of pausing event delivery.
package routes
