// Package jobs runs periodic background work for the server, such as
// publishing entity totals and connection pool statistics to Prometheus.
//
//	scheduler := jobs.NewScheduler(logger, 30*time.Second)
//	refresher := jobs.NewGaugeRefresher(store, metrics)
//	if err := scheduler.Add("entity-gauges", "@every 1m", refresher.Refresh); err != nil {
//		return err
//	}
//	scheduler.Start()
//	defer scheduler.Stop(ctx)
package jobs
