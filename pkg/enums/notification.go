package enums

import "slices"

// NotificationType maps to the notification_type column.
type NotificationType string

const (
	NotificationTypeOrderReceived      NotificationType = "order_received"
	NotificationTypeOrderShipping      NotificationType = "order_shipping"
	NotificationTypeProductModerated   NotificationType = "product_moderated"
	NotificationTypeSystemAnnouncement NotificationType = "system_announcement"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderReceived,
	NotificationTypeOrderShipping,
	NotificationTypeProductModerated,
	NotificationTypeSystemAnnouncement,
}

func (v NotificationType) IsValid() bool {
	return slices.Contains(validNotificationTypes, v)
}

func ParseNotificationType(value string) (NotificationType, error) {
	return parse("notification type", value, validNotificationTypes)
}
