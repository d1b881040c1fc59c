package notification

import "github.com/printpush/printpush/internal/apps"

// PrefersActivity reports whether a device's live activity should take the
// event. Minor events go to a regular push channel instead.
func PrefersActivity(k Kind) bool {
	return k != KindBeep && k != KindFirstLayerDone && k != KindThirdLayerDone
}

// CanUseNonActivity reports whether the event may use a regular iOS push.
// Progress-type events only ever reach live activities on iOS.
func CanUseNonActivity(k Kind) bool {
	return k != KindPrinting && k != KindResume
}

// SelectTargets picks the registrations that receive an event. Per device it
// picks the newest activity, else one iOS app, else every Android app.
// With onlyActivities the selection is narrowed to live activities.
func SelectTargets(list []apps.AppInstance, k Kind, onlyActivities bool) []apps.AppInstance {
	preferActivity := PrefersActivity(k)
	canUseNonActivity := CanUseNonActivity(k) && !onlyActivities

	var targets []apps.AppInstance
	for _, device := range apps.GroupByInstance(list) {
		targets = append(targets, pickBest(device, preferActivity, canUseNonActivity)...)
	}

	if onlyActivities {
		targets = apps.Activities(targets)
	}
	return targets
}

func pickBest(device []apps.AppInstance, preferActivity, canUseNonActivity bool) []apps.AppInstance {
	activities := apps.Activities(device)
	ios := apps.IOSApps(device)
	android := apps.AndroidApps(device)

	switch {
	case len(activities) > 0 && preferActivity:
		return activities[:1]
	case len(ios) > 0 && canUseNonActivity:
		// iOS gets nothing when only an activity could be used but none exists.
		return ios[:1]
	case len(android) > 0:
		// Watch and phone may both want the Android path.
		return android
	default:
		return nil
	}
}
