package models

import "time"

type Profile struct {
	ID             int64  `json:"id,string"`
	ExternalAuthID string `json:"-"`
	Username       string `json:"username"`
	DisplayName    string `json:"displayName"`
	ImageURL       string `json:"imageUrl"`
	Status         string `json:"status"`
	About          string `json:"about"`
	AccessLevel    string `json:"accessLevel"`
}

// PublicProfile is the only projection of a profile that leaves the server
// attached to other people's data.
type PublicProfile struct {
	ID          int64  `json:"id,string"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	ImageURL    string `json:"imageUrl"`
}

func (p Profile) Public() PublicProfile {
	return PublicProfile{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		ImageURL:    p.ImageURL,
	}
}

type Server struct {
	ID             int64  `json:"id,string"`
	Name           string `json:"name"`
	ImageURL       string `json:"imageUrl"`
	InviteCode     string `json:"inviteCode,omitempty"`
	OwnerProfileID int64  `json:"ownerProfileId,string"`
}

// ServerSummary is a row of the explore list.
type ServerSummary struct {
	Server
	MemberCount int `json:"memberCount"`
}

// ServerDetails is what a member sees when opening a server.
type ServerDetails struct {
	Server
	Channels []Channel           `json:"channels"`
	Members  []MemberWithProfile `json:"members"`
}

type Member struct {
	ID        int64 `json:"id,string"`
	ProfileID int64 `json:"profileId,string"`
	ServerID  int64 `json:"serverId,string"`
	Role      Role  `json:"role"`
}

type MemberWithProfile struct {
	Member
	Profile PublicProfile `json:"profile"`
}

type ChannelType string

const (
	ChannelTypeText  ChannelType = "TEXT"
	ChannelTypeAudio ChannelType = "AUDIO"
	ChannelTypeVideo ChannelType = "VIDEO"
)

func (t ChannelType) Valid() bool {
	switch t {
	case ChannelTypeText, ChannelTypeAudio, ChannelTypeVideo:
		return true
	}
	return false
}

// GeneralChannelName is reserved: such a channel can't be renamed or deleted.
const GeneralChannelName = "general"

type Channel struct {
	ID               int64       `json:"id,string"`
	ServerID         int64       `json:"serverId,string"`
	Name             string      `json:"name"`
	Type             ChannelType `json:"type"`
	CreatorProfileID int64       `json:"creatorProfileId,string"`
}

func (c Channel) IsGeneral() bool {
	return c.Name == GeneralChannelName
}

type Conversation struct {
	ID          int64 `json:"id,string"`
	MemberOneID int64 `json:"memberOneId,string"`
	MemberTwoID int64 `json:"memberTwoId,string"`
}

// Author is the member who wrote a message, joined with the public part of
// their profile.
type Author struct {
	MemberID int64         `json:"memberId,string"`
	Role     Role          `json:"role"`
	Profile  PublicProfile `json:"profile"`
}

// Message is used for both channel messages and direct messages; exactly one
// of ChannelID and ConversationID is set.
type Message struct {
	ID             int64     `json:"id,string"`
	ChannelID      int64     `json:"channelId,string,omitempty"`
	ConversationID int64     `json:"conversationId,string,omitempty"`
	MemberID       int64     `json:"memberId,string"`
	Content        string    `json:"content"`
	FileURL        string    `json:"fileUrl,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Deleted        bool      `json:"deleted"`
	Author         Author    `json:"member"`
}

// DeletedMessageContent replaces the content of a tombstoned message.
const DeletedMessageContent = "This message has been deleted."

type Page struct {
	Items      []Message `json:"items"`
	NextCursor *string   `json:"nextCursor"`
}

type ConfigFile struct {
	Address           string `koanf:"address"`
	Port              string `koanf:"port"`
	PublicURL         string `koanf:"public_url"`
	BehindNginx       bool   `koanf:"behind_nginx"`
	TlsCert           string `koanf:"tls_cert"`
	TlsKey            string `koanf:"tls_key"`
	PrintHttpRequests bool   `koanf:"print_http_requests"`
	LogToFile         bool   `koanf:"log_to_file"`
	LogLevel          string `koanf:"log_level"`
	JwtSecret         string `koanf:"jwt_secret"`
	SnowflakeWorkerID int64  `koanf:"snowflake_worker_id"`
	SelfContained     bool   `koanf:"self_contained"`
	SqlitePath        string `koanf:"sqlite_path"`
	DbUser            string `koanf:"db_user"`
	DbPassword        string `koanf:"db_password"`
	DbAddress         string `koanf:"db_address"`
	DbPort            string `koanf:"db_port"`
	DbDatabase        string `koanf:"db_database"`
	RedisAddress      string `koanf:"redis_address"`
	RedisPassword     string `koanf:"redis_password"`
	RedisDB           int    `koanf:"redis_db"`

	SubscriberQueueSize int    `koanf:"subscriber_queue_size"`
	MessageRateLimit    int    `koanf:"message_rate_limit"`
	UploadDir           string `koanf:"upload_dir"`
	UploadMaxBytes      int64  `koanf:"upload_max_bytes"`
}
