// Package app provides the Application Composition Layer for ProteinLens.
//
// # Architecture Role
//
// The app package sits above the domain and service layers and composes them
// into a running application. It is NOT a business logic layer - business
// logic belongs in internal/app/services/.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Main application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── session/        # Capture session value + transition function
//	│   ├── nutrition/      # Analyses and food items
//	│   ├── meal/           # Logged meals and daily summaries
//	│   ├── goal/           # Daily macro goals and progress
//	│   ├── profile/        # Diet profiles and user selections
//	│   └── analysis/       # Vision analysis attempt records
//	├── storage/            # Storage interfaces and implementations
//	│   ├── interfaces.go   # Store interfaces (MealStore, GoalStore, etc.)
//	│   ├── memory/         # In-memory implementation for testing
//	│   ├── postgres/       # PostgreSQL implementation for production
//	│   └── rediscache/     # Optional Redis JSON cache
//	├── services/           # Business logic (capture, meals, goals, ...)
//	├── httpapi/            # HTTP API handlers and routing
//	├── system/             # System management (lifecycle manager)
//	└── metrics/            # Application metrics
//
// # Responsibilities
//
// The app package is responsible for:
//
//   - Composing services from internal/app/services/ with their dependencies
//   - Defining storage interfaces that services depend on
//   - Providing domain models shared across services
//   - Exposing HTTP API endpoints for external access
//   - Managing application-level concerns (lifecycle, metrics)
//
// # Dependency Direction
//
// The dependency flow is:
//
//	cmd/proteinlens/
//	      │
//	      ▼
//	internal/app/runtime (config -> infrastructure -> app)
//	      │
//	      ▼
//	internal/app/ (composition)
//	      │
//	      ├──► internal/app/services/ (business logic)
//	      │           │
//	      │           └──► internal/app/domain/ (pure models)
//	      │
//	      ├──► internal/app/storage/ (persistence)
//	      │
//	      └──► internal/storage/objectstore/ (image blobs)
//
// # Example: Adding a New Domain
//
// When adding a new domain (e.g., "hydration"):
//
//  1. Create domain models in internal/app/domain/hydration/
//  2. Add storage interface to internal/app/storage/interfaces.go
//  3. Implement storage in internal/app/storage/postgres/ and memory/
//  4. Create service in internal/app/services/hydration/service.go
//  5. Wire service in internal/app/application.go
//  6. Add HTTP handlers in internal/app/httpapi/
package app
