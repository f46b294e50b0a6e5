// Package entity provides the generic data-access types for working with an
// entity admin API: criteria, entities, collections and the repository
// contract.
//
// # Overview
//
// Entities are schema-less records identified by an opaque id. A Repository
// is bound to one entity name and performs search, get, save, delete and
// sync against the remote API. Every call receives an explicit APIContext
// that scopes it to an endpoint, language, currency and API version; the
// data layer never keeps a current context of its own.
//
// A concrete Repository is created through the entityclient package:
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/fivetwenty-io/entity-client/pkg/entity"
//	  "github.com/fivetwenty-io/entity-client/pkg/entityclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//	  factory, err := entityclient.New(&entityclient.Config{})
//	  if err != nil { log.Fatal(err) }
//
//	  apiCtx := entity.APIContext{
//	    Endpoint:   "https://shop.example.com/api",
//	    LanguageID: "2fbb5fe2e29a4d70aa5854ce7ce3e20b",
//	    APIVersion: "3",
//	  }
//
//	  criteria := entity.NewCriteria().
//	    AddAssociation("locale").
//	    AddSorting(entity.Sort("username", entity.SortAscending)).
//	    SetLimit(25)
//
//	  users, err := factory.Create("user").Search(ctx, criteria, apiCtx)
//	  if err != nil { log.Fatal(err) }
//	  _ = users
//	}
//
// # Change tracking
//
// Entities remember their loaded values. Save transmits only the fields that
// changed; a new entity sends everything. Save returns a fresh entity with
// the server's canonical values and leaves the argument untouched, so a
// failed save can be corrected and retried with the same value.
//
// # Sync
//
// Sync and SyncOperations send many upserts and deletes in one round trip.
// Items succeed or fail independently; the results are aligned by index with
// the input.
//
// # Stale results
//
// Concurrent searches complete in any order. EntityCollection keeps the
// criteria and context it was loaded with; RequestTracker builds a
// last-request-wins check on top of that.
package entity
