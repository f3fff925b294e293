package reminder

import "time"

func SetPlannerClock(p *Planner, now func() time.Time)       { p.now = now }
func SetDispatcherClock(d *Dispatcher, now func() time.Time) { d.now = now }
