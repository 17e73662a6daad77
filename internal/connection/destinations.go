package connection

// RoomTopic is the broadcast topic of a room.
func RoomTopic(roomID string) string {
	return "/topic/room/" + roomID
}

// HistoryQueue is the per-user queue that receives the backlog on subscribe.
func HistoryQueue(roomID string) string {
	return "/user/queue/room/" + roomID + "/history"
}

// JoinDestination receives the join notice.
func JoinDestination(roomID string) string {
	return "/app/chat/" + roomID + "/join"
}

// SendDestination receives outbound chat content.
func SendDestination(roomID string) string {
	return "/app/chat/" + roomID + "/send"
}
