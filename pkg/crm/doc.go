// Package crm provides the record model, error taxonomy, and response decoder
// for working with a session-authenticated, multi-tenant CRM record API.
//
// # Overview
//
// The remote platform exposes typed "objects" whose schema is defined per
// tenant. This package deliberately keeps records schema-less: a Record is a
// type name, an optional ID, a map of field names to optional string values,
// and two maps of nested relationship results. Concrete clients that talk to
// the platform are built by the crmclient package; the connection pooling
// primitives live in connpool.
//
// Getting a client
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/fivetwenty-io/crm-client/pkg/crm"
//	  "github.com/fivetwenty-io/crm-client/pkg/crmclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//	  cli, err := crmclient.New(&crm.Config{})
//	  if err != nil { log.Fatal(err) }
//
//	  acme := crm.Tenant{Key: "acme"}
//	  if err := cli.Configure(ctx, acme, "user@acme.example", "secret", 4); err != nil {
//	    log.Fatal(err)
//	  }
//
//	  page, err := cli.Query(ctx, acme, "SELECT Id, Name FROM Account")
//	  if err != nil { log.Fatal(err) }
//	  _ = page
//	}
//
// # Records and query results
//
// A field that was not retrieved is absent from the field map; a field that
// was retrieved and is null maps to a nil *string. Child-to-parent
// relationships decode to nested Records and parent-to-children
// relationships decode to nested QueryResults. A QueryResult carries a
// cursor exactly when it is not done.
//
// # Errors
//
// Every failure matches one of the sentinel errors in errors.go via
// errors.Is, or is a *RemoteAPIError. IsSessionExpired reports the remote
// "invalid session" condition so callers can re-authenticate and retry.
package crm
