/*
Package metrics exposes Prometheus metrics for the deployment controller.

Counters track deployment attempts by action and outcome, rollbacks by
trigger, and audit records that had to fall back to stderr. Histograms
cover end-to-end deployment duration and individual health probe
observations.

Metrics register with the default registry at package init. Handler
returns the scrape endpoint handler; the CLI mounts it when
--metrics-addr is set.
*/
package metrics
