// Package automation evaluates the rule document against the value
// cache and wall-clock time, driving actuators through the permission
// arbiter with source automation.
//
// The Store caches the parsed rule file and reparses only when the
// file's modification time advances. The Engine loops on a fixed
// interval; each enabled rule's all_of conditions AND together with
// short-circuit, any_of conditions OR when present. Cron conditions
// fire once per scheduled tick within a grace window, tracked per rule
// id. A malformed condition or a panicking rule is contained and
// logged; the cycle continues.
package automation
