// Package access is the role and access configuration core of a multi-tenant
// site builder. Feature modules, loaded in any order, declare roles, switch
// standard auth pages on and off, add navigation entries and claim the home
// URL. The package keeps every principal's staff flag consistent with the
// single role it holds.
//
// Registries:
//   - AuthPageRegistry tracks the fixed auth pages, their config blobs and the
//     global username field settings. BulkConfigure is all-or-nothing.
//   - RoleRegistry holds the declared roles. RegisterRoles replaces the whole
//     set and at most one role is the default given to new principals.
//   - PermissionRegistry maps roles to "domain.action" permissions.
//   - NavigationRegistry and HomeURLRegistry back menus and the home link.
//     The first module to register a home URL keeps it.
//
// Staff flags:
//   - PrincipalService publishes MembershipChanged events on an EventBus.
//     StaffStatusReconciler subscribes and writes the derived flag with a
//     direct update that runs no save hooks. Superusers are always staff.
//   - BulkUpdateStaffStatus, SyncStaffStatusHandler and StaffSyncScheduler
//     cover bulk repairs.
//
// Site wires all of the above on top of a Store, either the bun backed
// RepositoryManager or MemoryStore. Reads of unknown identifiers are
// permissive, writes fail with errors that wrap the package sentinels.
package access
