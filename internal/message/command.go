package message

// Command enumerates the Redis command mnemonics this client's dispatch
// layer needs to reason about directly. The typed high-level command
// surface (the hundreds of GET/HSET/ZADD wrappers) is out of scope per
// spec.md 1; this enum only needs to be complete enough for routing,
// transaction termination detection, and the hints table in spec.md 6.
type Command int

const (
	CmdUnknown Command = iota

	CmdGet
	CmdSet
	CmdGetSet
	CmdDel
	CmdExists
	CmdExpire
	CmdTTL
	CmdIncr
	CmdDecr
	CmdIncrBy
	CmdAppend
	CmdMGet
	CmdMSet

	CmdHSet
	CmdHGet
	CmdHDel
	CmdHGetAll
	CmdHExists
	CmdHLen

	CmdLPush
	CmdRPush
	CmdLPop
	CmdRPop
	CmdLRange
	CmdLIndex

	CmdSAdd
	CmdSRem
	CmdSMembers
	CmdSIsMember

	CmdZAdd
	CmdZScore
	CmdZRange
	CmdZCount
	CmdZRangeByLex

	CmdMulti
	CmdExec
	CmdDiscard
	CmdWatch
	CmdUnwatch

	CmdSubscribe
	CmdUnsubscribe
	CmdPSubscribe
	CmdPUnsubscribe
	CmdSSubscribe
	CmdSUnsubscribe
	CmdPublish

	CmdPing
	CmdAuth
	CmdHello
	CmdSelect
	CmdClientSetName
	CmdClientSetInfo
	CmdClientInfo
	CmdAsking
	CmdClusterNodes
	CmdInfo

	CmdEval
	CmdEvalSha
	CmdScriptLoad

	CmdSentinel
)

// Hints describes client-side dispatch knowledge about a command: arity,
// whether it mutates data, whether it is an admin command requiring
// allowAdmin, whether it can be served by a replica, whether it
// participates in pub/sub subscription-count bookkeeping, and whether it
// terminates an in-flight transaction body (spec.md 6).
type Hints struct {
	MinArity        int // not counting the command name itself, -1 = unbounded
	MaxArity        int // -1 = unbounded
	Write           bool
	Admin           bool
	ReplicaOK       bool
	PubSub          bool
	EndsTransaction bool
	HighPriority    bool
}

// unknownHints is returned for any Command not present in the table:
// "writes, primary-only, non-admin" per spec.md 6.
var unknownHints = Hints{MinArity: 0, MaxArity: -1, Write: true}

var hints = map[Command]Hints{
	CmdGet:        {MinArity: 1, MaxArity: 1, ReplicaOK: true},
	CmdSet:        {MinArity: 2, MaxArity: -1, Write: true},
	CmdGetSet:     {MinArity: 2, MaxArity: 2, Write: true},
	CmdDel:        {MinArity: 1, MaxArity: -1, Write: true},
	CmdExists:     {MinArity: 1, MaxArity: -1, ReplicaOK: true},
	CmdExpire:     {MinArity: 2, MaxArity: 4, Write: true},
	CmdTTL:        {MinArity: 1, MaxArity: 1, ReplicaOK: true},
	CmdIncr:       {MinArity: 1, MaxArity: 1, Write: true},
	CmdDecr:       {MinArity: 1, MaxArity: 1, Write: true},
	CmdIncrBy:     {MinArity: 2, MaxArity: 2, Write: true},
	CmdAppend:     {MinArity: 2, MaxArity: 2, Write: true},
	CmdMGet:       {MinArity: 1, MaxArity: -1, ReplicaOK: true},
	CmdMSet:       {MinArity: 2, MaxArity: -1, Write: true},

	CmdHSet:     {MinArity: 3, MaxArity: -1, Write: true},
	CmdHGet:     {MinArity: 2, MaxArity: 2, ReplicaOK: true},
	CmdHDel:     {MinArity: 2, MaxArity: -1, Write: true},
	CmdHGetAll:  {MinArity: 1, MaxArity: 1, ReplicaOK: true},
	CmdHExists:  {MinArity: 2, MaxArity: 2, ReplicaOK: true},
	CmdHLen:     {MinArity: 1, MaxArity: 1, ReplicaOK: true},

	CmdLPush:  {MinArity: 2, MaxArity: -1, Write: true},
	CmdRPush:  {MinArity: 2, MaxArity: -1, Write: true},
	CmdLPop:   {MinArity: 1, MaxArity: 2, Write: true},
	CmdRPop:   {MinArity: 1, MaxArity: 2, Write: true},
	CmdLRange: {MinArity: 3, MaxArity: 3, ReplicaOK: true},
	CmdLIndex: {MinArity: 2, MaxArity: 2, ReplicaOK: true},

	CmdSAdd:      {MinArity: 2, MaxArity: -1, Write: true},
	CmdSRem:      {MinArity: 2, MaxArity: -1, Write: true},
	CmdSMembers:  {MinArity: 1, MaxArity: 1, ReplicaOK: true},
	CmdSIsMember: {MinArity: 2, MaxArity: 2, ReplicaOK: true},

	CmdZAdd:        {MinArity: 3, MaxArity: -1, Write: true},
	CmdZScore:      {MinArity: 2, MaxArity: 2, ReplicaOK: true},
	CmdZRange:      {MinArity: 3, MaxArity: -1, ReplicaOK: true},
	CmdZCount:      {MinArity: 3, MaxArity: 3, ReplicaOK: true},
	CmdZRangeByLex: {MinArity: 3, MaxArity: -1, ReplicaOK: true},

	CmdMulti:   {MinArity: 0, MaxArity: 0, HighPriority: true},
	CmdExec:    {MinArity: 0, MaxArity: 0, EndsTransaction: true, HighPriority: true},
	CmdDiscard: {MinArity: 0, MaxArity: 0, EndsTransaction: true, HighPriority: true},
	CmdWatch:   {MinArity: 1, MaxArity: -1, ReplicaOK: true, HighPriority: true},
	CmdUnwatch: {MinArity: 0, MaxArity: 0, HighPriority: true},

	CmdSubscribe:    {MinArity: 1, MaxArity: -1, PubSub: true, HighPriority: true},
	CmdUnsubscribe:  {MinArity: 0, MaxArity: -1, PubSub: true, HighPriority: true},
	CmdPSubscribe:   {MinArity: 1, MaxArity: -1, PubSub: true, HighPriority: true},
	CmdPUnsubscribe: {MinArity: 0, MaxArity: -1, PubSub: true, HighPriority: true},
	CmdSSubscribe:   {MinArity: 1, MaxArity: -1, PubSub: true, HighPriority: true},
	CmdSUnsubscribe: {MinArity: 0, MaxArity: -1, PubSub: true, HighPriority: true},
	CmdPublish:      {MinArity: 2, MaxArity: 2, ReplicaOK: true},

	CmdPing:          {MinArity: 0, MaxArity: 1, ReplicaOK: true, HighPriority: true},
	CmdAuth:          {MinArity: 1, MaxArity: 2, Admin: true, HighPriority: true},
	CmdHello:         {MinArity: 0, MaxArity: -1, Admin: true, HighPriority: true},
	CmdSelect:        {MinArity: 1, MaxArity: 1, Admin: true, HighPriority: true},
	CmdClientSetName: {MinArity: 1, MaxArity: 1, Admin: true, HighPriority: true},
	CmdClientSetInfo: {MinArity: 2, MaxArity: 2, Admin: true, HighPriority: true},
	CmdClientInfo:    {MinArity: 0, MaxArity: 0, Admin: true, ReplicaOK: true},
	CmdAsking:        {MinArity: 0, MaxArity: 0, HighPriority: true},
	CmdClusterNodes:  {MinArity: 0, MaxArity: 0, Admin: true, ReplicaOK: true, HighPriority: true},
	CmdInfo:          {MinArity: 0, MaxArity: 1, Admin: true, ReplicaOK: true, HighPriority: true},

	CmdEval:       {MinArity: 2, MaxArity: -1, Write: true},
	CmdEvalSha:    {MinArity: 2, MaxArity: -1, Write: true},
	CmdScriptLoad: {MinArity: 1, MaxArity: 1, Admin: true},

	CmdSentinel: {MinArity: 2, MaxArity: -1, Admin: true, ReplicaOK: true, HighPriority: true},
}

// HintsFor returns the client-side dispatch hints for cmd, defaulting to
// "writes, primary-only, non-admin" for any command not in the table.
func HintsFor(cmd Command) Hints {
	if h, ok := hints[cmd]; ok {
		return h
	}
	return unknownHints
}

var names = map[Command]string{
	CmdGet: "GET", CmdSet: "SET", CmdGetSet: "GETSET", CmdDel: "DEL",
	CmdExists: "EXISTS", CmdExpire: "EXPIRE", CmdTTL: "TTL", CmdIncr: "INCR",
	CmdDecr: "DECR", CmdIncrBy: "INCRBY", CmdAppend: "APPEND", CmdMGet: "MGET",
	CmdMSet: "MSET",

	CmdHSet: "HSET", CmdHGet: "HGET", CmdHDel: "HDEL", CmdHGetAll: "HGETALL",
	CmdHExists: "HEXISTS", CmdHLen: "HLEN",

	CmdLPush: "LPUSH", CmdRPush: "RPUSH", CmdLPop: "LPOP", CmdRPop: "RPOP",
	CmdLRange: "LRANGE", CmdLIndex: "LINDEX",

	CmdSAdd: "SADD", CmdSRem: "SREM", CmdSMembers: "SMEMBERS", CmdSIsMember: "SISMEMBER",

	CmdZAdd: "ZADD", CmdZScore: "ZSCORE", CmdZRange: "ZRANGE", CmdZCount: "ZCOUNT",
	CmdZRangeByLex: "ZRANGEBYLEX",

	CmdMulti: "MULTI", CmdExec: "EXEC", CmdDiscard: "DISCARD", CmdWatch: "WATCH",
	CmdUnwatch: "UNWATCH",

	CmdSubscribe: "SUBSCRIBE", CmdUnsubscribe: "UNSUBSCRIBE", CmdPSubscribe: "PSUBSCRIBE",
	CmdPUnsubscribe: "PUNSUBSCRIBE", CmdSSubscribe: "SSUBSCRIBE", CmdSUnsubscribe: "SUNSUBSCRIBE",
	CmdPublish: "PUBLISH",

	CmdPing: "PING", CmdAuth: "AUTH", CmdHello: "HELLO", CmdSelect: "SELECT",
	CmdClientSetName: "CLIENT", CmdClientSetInfo: "CLIENT", CmdClientInfo: "CLIENT",
	CmdAsking: "ASKING", CmdClusterNodes: "CLUSTER", CmdInfo: "INFO",

	CmdEval: "EVAL", CmdEvalSha: "EVALSHA", CmdScriptLoad: "SCRIPT",
	CmdSentinel: "SENTINEL",
}

// Name returns the wire verb for cmd. A handful of commands (CLIENT
// SETNAME/SETINFO/INFO, CLUSTER NODES, SCRIPT LOAD) share a verb with a
// subcommand that belongs in Args rather than here; callers building those
// Messages append the subcommand as the first element of Args.
func (c Command) Name() string {
	if n, ok := names[c]; ok {
		return n
	}
	return "UNKNOWN"
}
