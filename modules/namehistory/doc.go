// Package namehistory provides a persistent name-change history module that
// records per-member display-name transitions, maintains toggleable likes on
// each recorded change, exposes a paginated sorted view over `/history`,
// `/like` and `/wholike` commands, and supports replaying audit exports with
// the `~import` command.
package namehistory
