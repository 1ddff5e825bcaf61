package domain

// PrivilegeSet holds the eight administrator capabilities copied onto a target.
type PrivilegeSet struct {
	ManageChat       bool `json:"can_manage_chat"`
	DeleteMessages   bool `json:"can_delete_messages"`
	ManageVideoChats bool `json:"can_manage_video_chats"`
	RestrictMembers  bool `json:"can_restrict_members"`
	PromoteMembers   bool `json:"can_promote_members"`
	ChangeInfo       bool `json:"can_change_info"`
	InviteUsers      bool `json:"can_invite_users"`
	PinMessages      bool `json:"can_pin_messages"`
}

type Privilege string

const (
	PrivilegeManageChat       Privilege = "can_manage_chat"
	PrivilegeDeleteMessages   Privilege = "can_delete_messages"
	PrivilegeManageVideoChats Privilege = "can_manage_video_chats"
	PrivilegeRestrictMembers  Privilege = "can_restrict_members"
	PrivilegePromoteMembers   Privilege = "can_promote_members"
	PrivilegeChangeInfo       Privilege = "can_change_info"
	PrivilegeInviteUsers      Privilege = "can_invite_users"
	PrivilegePinMessages      Privilege = "can_pin_messages"
)

func FullPrivileges() PrivilegeSet {
	return PrivilegeSet{
		ManageChat:       true,
		DeleteMessages:   true,
		ManageVideoChats: true,
		RestrictMembers:  true,
		PromoteMembers:   true,
		ChangeInfo:       true,
		InviteUsers:      true,
		PinMessages:      true,
	}
}

func (p PrivilegeSet) Has(privilege Privilege) bool {
	switch privilege {
	case PrivilegeManageChat:
		return p.ManageChat
	case PrivilegeDeleteMessages:
		return p.DeleteMessages
	case PrivilegeManageVideoChats:
		return p.ManageVideoChats
	case PrivilegeRestrictMembers:
		return p.RestrictMembers
	case PrivilegePromoteMembers:
		return p.PromoteMembers
	case PrivilegeChangeInfo:
		return p.ChangeInfo
	case PrivilegeInviteUsers:
		return p.InviteUsers
	case PrivilegePinMessages:
		return p.PinMessages
	default:
		return false
	}
}

// Missing returns the required privileges that are not granted, in argument order.
func (p PrivilegeSet) Missing(required ...Privilege) []Privilege {
	out := make([]Privilege, 0)
	for _, privilege := range required {
		if !p.Has(privilege) {
			out = append(out, privilege)
		}
	}
	return out
}

// Names lists the granted privileges in declaration order.
func (p PrivilegeSet) Names() []string {
	all := []Privilege{
		PrivilegeManageChat,
		PrivilegeDeleteMessages,
		PrivilegeManageVideoChats,
		PrivilegeRestrictMembers,
		PrivilegePromoteMembers,
		PrivilegeChangeInfo,
		PrivilegeInviteUsers,
		PrivilegePinMessages,
	}
	out := make([]string, 0, len(all))
	for _, privilege := range all {
		if p.Has(privilege) {
			out = append(out, string(privilege))
		}
	}
	return out
}

func (p PrivilegeSet) IsZero() bool {
	return p == PrivilegeSet{}
}
