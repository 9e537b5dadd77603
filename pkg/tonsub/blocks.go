package tonsub

// MasterchainBlock carries the fields handleMasterchainBlock needs: the
// generation time to advance the subscriber's clock, and the shards map
// that is handed to every awaiter registered through WaitShards. The
// indexer adapter fills Shards on every block, whether or not an awaiter
// is pending.
type MasterchainBlock struct {
	GenUtime uint32
	Shards   ShardsMap
}

// ShardBlock carries everything handleShardBlock needs to update per-account
// state and dispatch transactions.
type ShardBlock struct {
	Info         BlockInfo
	Transactions map[AccountID][]Transaction
	Accounts     map[AccountID]ShardAccount
}

// ProcessBlock is the Go stand-in for ton_indexer::Subscriber::process_block:
// the indexer adapter calls it once per block, masterchain and shard alike.
// Blocks are discarded until the subscriber is ready.
func (s *Subscriber) ProcessBlock(mc *MasterchainBlock, shard *ShardBlock) {
	if !s.IsReady() {
		return
	}
	if mc != nil {
		s.handleMasterchainBlock(mc)
	}
	if shard != nil {
		s.handleShardBlock(shard)
	}
}

func (s *Subscriber) handleMasterchainBlock(mc *MasterchainBlock) {
	s.mu.Lock()
	s.currentUtime = mc.GenUtime
	awaiters := s.mcBlockAwaiters
	s.mcBlockAwaiters = nil
	s.mu.Unlock()

	for _, awaiter := range awaiters {
		awaiter(mc.Shards)
	}
}

func (s *Subscriber) handleShardBlock(block *ShardBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for account, sub := range s.stateSubs {
		status := sub.updateStatus()
		if status == statusStopped {
			delete(s.stateSubs, account)
			continue
		}
		if !ContainsAccount(block.Info, account) {
			continue
		}

		if txs, ok := block.Transactions[account]; ok {
			for _, tx := range txs {
				for _, entry := range sub.subs {
					if entry.isAlive != nil && !entry.isAlive() {
						continue
					}
					if err := entry.handler.HandleTransaction(block.Info, tx.Hash, tx); err != nil {
						s.log.Errorf("failed to handle transaction %x for account %s: %v", tx.Hash, account, err)
					}
				}
			}
		}

		if status == statusAlive {
			acct, ok := block.Accounts[account]
			if !ok {
				continue
			}
			accountCopy := acct
			sub.state.Set(&accountCopy)
		}
	}
}

// CurrentUtime returns the generation time of the last processed
// masterchain block.
func (s *Subscriber) CurrentUtime() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentUtime
}
