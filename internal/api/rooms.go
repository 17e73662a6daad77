package api

import "context"

// CreateRoom creates a room and returns the server's message.
func (c *Client) CreateRoom(ctx context.Context, roomID string) (string, error) {
	body, err := c.post(ctx, "/room/create-room", RoomRequest{RoomID: roomID})
	if err != nil {
		return "", err
	}
	return responseMessage(body), nil
}

// JoinRoom registers the current user in a room and returns the server's message.
func (c *Client) JoinRoom(ctx context.Context, roomID string) (string, error) {
	body, err := c.post(ctx, "/room/join-room", RoomRequest{RoomID: roomID})
	if err != nil {
		return "", err
	}
	return responseMessage(body), nil
}
