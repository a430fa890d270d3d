// Package crmclient provides the main entry point for building a
// multi-tenant CRM client that implements the crm.Client interface.
//
// It wires the OAuth2 password login, the REST transport, the per-tenant
// connection pool and optional call metrics together. Tenants are added at
// run time with Configure; every call then names the tenant it is for.
//
// Quick start
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
//
//	  cli, err := crmclient.New(&crm.Config{
//	    ClientID:     "3MVG9...",
//	    ClientSecret: "...",
//	    Metrics:      &crm.MetricsConfig{InMemory: true},
//	  })
//	  if err != nil { log.Fatal(err) }
//	  defer cli.Close()
//
//	  acme := crm.Tenant{Key: "acme"}
//	  if err := cli.Configure(ctx, acme, "ops@acme.example", "pw+token", 4); err != nil {
//	    log.Fatal(err)
//	  }
//
//	  err = cli.QueryEach(ctx, acme, "SELECT Id, Name FROM Account", func(r *crm.Record) error {
//	    log.Println(r.FieldString("Name"))
//	    return nil
//	  })
//	  if crm.IsSessionExpired(err) {
//	    // Recovery is up to the caller.
//	    _ = cli.Reauthenticate(ctx, acme)
//	  }
//	}
//
// Sandbox tenants
//
// A sandbox tenant is a separate registry entry: crm.Tenant{Key: "acme",
// Sandbox: true} logs in against the sandbox login host and never shares a
// session with the production tenant of the same key.
//
// Batches
//
// NewBatchExecutor runs independent operations concurrently. Each
// operation still waits for admission under its tenant's limit.
package crmclient
