// Package app composes the settlement gateway's services into one
// Application.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring and lifecycle
//	├── domain/             # Domain models (balance, settlement, token, wallet, ...)
//	├── services/           # Balances, pricing, tokens, wallets, settlement, invoices, onboarding
//	├── storage/            # Store interfaces
//	│   ├── memory/         # In-memory implementation
//	│   └── postgres/       # PostgreSQL implementation
//	├── events/             # Invalidation hub and redis relay
//	├── httpapi/            # HTTP and websocket surface
//	├── runtime/            # Process wiring: stores, HTTP server, shutdown
//	├── system/             # Lifecycle manager for background services
//	└── metrics/            # Prometheus collectors
//
// # Dependency Direction
//
//	cmd/splito-gateway, cmd/splitoctl
//	      │
//	      ▼
//	internal/app/runtime ──► internal/app (composition)
//	                               │
//	                               ├──► internal/app/services
//	                               ├──► internal/splito (backend client)
//	                               └──► internal/cache, internal/config
//
// Services never import httpapi; handlers only translate requests into
// service calls and apperr codes into status codes.
package app
