package sqlinline

// QSelectIntegrationToken returns the stored token for a provider, ignoring
// rows whose token was blanked out.
const QSelectIntegrationToken = `--sql 8a8e0d52-7f5d-4f21-8b7d-f7d4b821eed7
select token
from integration_tokens
where provider = $1::text
  and btrim(token) <> ''
order by updated_at desc
limit 1;
`

// QUpsertIntegrationToken replaces the token and merges properties into the
// existing ones.
const QUpsertIntegrationToken = `--sql 6d4f5660-0f7c-4f73-a1f3-9ab6d5e6c7a3
insert into integration_tokens as t (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = coalesce(t.properties, '{}'::jsonb) || excluded.properties,
    updated_at = now();
`
